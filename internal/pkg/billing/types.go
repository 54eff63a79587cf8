package billing

import (
	"encoding/json"
	"time"
)

// Accepted Paddle event types. Everything else is acknowledged and ignored.
const (
	EventTransactionCreated  = "transaction.created"
	EventTransactionUpdated  = "transaction.updated"
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventCustomerCreated     = "customer.created"
	EventCustomerUpdated     = "customer.updated"
	EventBusinessCreated     = "business.created"
	EventBusinessUpdated     = "business.updated"
)

// Envelope is the provider-defined outer shape of every Paddle webhook.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// EventBundle is the normalized form of one delivery. A single webhook can
// populate more than one sub-record; each populated one is processed
// independently and is idempotent on its own.
type EventBundle struct {
	EventType  string
	OccurredAt time.Time
	Ignored    bool

	Customer     *CustomerData
	Business     *BusinessData
	Subscription *SubscriptionData
	Transaction  *TransactionData

	Raw []byte
}

// CustomerData mirrors the customer sub-record of a Paddle payload.
type CustomerData struct {
	ID    string
	Email string
	Name  string
}

// BusinessData mirrors the business sub-record of a Paddle payload.
type BusinessData struct {
	ID            string
	CustomerID    string
	Name          string
	CompanyNumber string
	TaxIdentifier string
}

// ItemData is one subscription or transaction line item.
type ItemData struct {
	PriceID   string
	ProductID string
	Quantity  int
}

// SubscriptionData mirrors the subscription sub-record of a Paddle payload.
type SubscriptionData struct {
	ID              string
	CustomerID      string
	Status          string
	CollectionMode  string
	ScheduledChange json.RawMessage
	Items           []ItemData
}

// TransactionData mirrors the transaction sub-record of a Paddle payload.
type TransactionData struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	Status         string
	Items          []ItemData
}

// TotalQuantity sums the item quantities, defaulting to 1 when the payload
// carries no items at all.
func totalQuantity(items []ItemData) int {
	if len(items) == 0 {
		return 1
	}
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	if total <= 0 {
		total = 1
	}
	return total
}
