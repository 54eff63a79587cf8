package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrMissingEventType = errors.New("missing event_type")

// rawSubscription matches Paddle's subscription data shape.
type rawSubscription struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customer_id"`
	Status          string          `json:"status"`
	CollectionMode  string          `json:"collection_mode"`
	ScheduledChange json.RawMessage `json:"scheduled_change"`
	Items           []rawItem       `json:"items"`
}

type rawItem struct {
	Quantity int `json:"quantity"`
	Price    struct {
		ID        string `json:"id"`
		ProductID string `json:"product_id"`
	} `json:"price"`
}

type rawTransaction struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	CustomerID     string    `json:"customer_id"`
	Status         string    `json:"status"`
	Items          []rawItem `json:"items"`
}

type rawCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type rawBusiness struct {
	ID            string `json:"id"`
	CustomerID    string `json:"customer_id"`
	Name          string `json:"name"`
	CompanyNumber string `json:"company_number"`
	TaxIdentifier string `json:"tax_identifier"`
}

// ParseEnvelope decodes the provider envelope. Only called after signature
// verification succeeded.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if strings.TrimSpace(env.EventType) == "" {
		return nil, ErrMissingEventType
	}
	return &env, nil
}

// IsAcceptedEventType reports whether the event type triggers reconciliation.
func IsAcceptedEventType(eventType string) bool {
	switch strings.TrimSpace(eventType) {
	case EventTransactionCreated, EventTransactionUpdated,
		EventSubscriptionCreated, EventSubscriptionUpdated,
		EventCustomerCreated, EventCustomerUpdated,
		EventBusinessCreated, EventBusinessUpdated:
		return true
	default:
		return false
	}
}

// Normalize maps an envelope into the typed bundle. Unknown event types are
// not an error; they come back flagged Ignored.
func Normalize(env *Envelope, receivedAt time.Time) (EventBundle, error) {
	bundle := EventBundle{
		EventType:  env.EventType,
		OccurredAt: env.OccurredAt,
		Raw:        env.Data,
	}
	if bundle.OccurredAt.IsZero() {
		bundle.OccurredAt = receivedAt
	}

	switch env.EventType {
	case EventCustomerCreated, EventCustomerUpdated:
		var c rawCustomer
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return EventBundle{}, err
		}
		bundle.Customer = &CustomerData{
			ID:    strings.TrimSpace(c.ID),
			Email: strings.TrimSpace(strings.ToLower(c.Email)),
			Name:  strings.TrimSpace(c.Name),
		}

	case EventBusinessCreated, EventBusinessUpdated:
		var b rawBusiness
		if err := json.Unmarshal(env.Data, &b); err != nil {
			return EventBundle{}, err
		}
		bundle.Business = &BusinessData{
			ID:            strings.TrimSpace(b.ID),
			CustomerID:    strings.TrimSpace(b.CustomerID),
			Name:          strings.TrimSpace(b.Name),
			CompanyNumber: strings.TrimSpace(b.CompanyNumber),
			TaxIdentifier: strings.TrimSpace(b.TaxIdentifier),
		}

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var s rawSubscription
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return EventBundle{}, err
		}
		bundle.Subscription = &SubscriptionData{
			ID:              strings.TrimSpace(s.ID),
			CustomerID:      strings.TrimSpace(s.CustomerID),
			Status:          strings.TrimSpace(s.Status),
			CollectionMode:  strings.TrimSpace(s.CollectionMode),
			ScheduledChange: s.ScheduledChange,
			Items:           normalizeItems(s.Items),
		}

	case EventTransactionCreated, EventTransactionUpdated:
		var t rawTransaction
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return EventBundle{}, err
		}
		bundle.Transaction = &TransactionData{
			ID:             strings.TrimSpace(t.ID),
			SubscriptionID: strings.TrimSpace(t.SubscriptionID),
			CustomerID:     strings.TrimSpace(t.CustomerID),
			Status:         strings.TrimSpace(t.Status),
			Items:          normalizeItems(t.Items),
		}

	default:
		bundle.Ignored = true
	}

	return bundle, nil
}

func normalizeItems(items []rawItem) []ItemData {
	out := make([]ItemData, 0, len(items))
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		out = append(out, ItemData{
			PriceID:   strings.TrimSpace(item.Price.ID),
			ProductID: strings.TrimSpace(item.Price.ProductID),
			Quantity:  qty,
		})
	}
	return out
}
