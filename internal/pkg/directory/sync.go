package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Directory attribute names carrying mirrored subscription state.
const (
	AttrSubscriptionID  = "paddle_subscription_id"
	AttrStatus          = "paddle_subscription_status"
	AttrLastUpdate      = "paddle_last_update"
	AttrCollectionMode  = "paddle_collection_mode"
	AttrCustomerID      = "paddle_customer_id"
	AttrScheduledChange = "paddle_scheduled_change"
	AttrProductIDs      = "paddle_product_ids"
	AttrPriceIDs        = "paddle_price_ids"
	AttrQuantities      = "paddle_quantities"
)

// DirectoryClient is the client surface the synchronizer needs. Satisfied by
// *Client; tests substitute a fake.
type DirectoryClient interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByAttribute(ctx context.Context, key, value string) (*User, error)
	UpdateUserAttributes(ctx context.Context, userID string, attributes map[string][]string) error
}

// SubscriptionAttributes is the subscription state pushed to the directory.
// Product/price/quantity are parallel arrays, one entry per item.
type SubscriptionAttributes struct {
	SubscriptionID  string
	Status          string
	CollectionMode  string
	CustomerID      string
	ScheduledChange string
	ProductIDs      []string
	PriceIDs        []string
	Quantities      []int
	OccurredAt      time.Time
}

// Synchronizer propagates reconciled subscription state into the identity
// directory under a last-write-wins ordering guard.
type Synchronizer struct {
	client DirectoryClient
}

// NewSynchronizer creates a synchronizer over the given client.
func NewSynchronizer(client DirectoryClient) *Synchronizer {
	return &Synchronizer{client: client}
}

// NewSynchronizerFromEnv creates a synchronizer over a client configured from
// the environment.
func NewSynchronizerFromEnv() *Synchronizer {
	return NewSynchronizer(NewClientFromEnv())
}

// FindUserBySubscriptionID looks up the directory user already carrying the
// subscription id attribute.
func (s *Synchronizer) FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*User, error) {
	return s.client.FindUserByAttribute(ctx, AttrSubscriptionID, subscriptionID)
}

// FindUserByEmail looks up the directory user with the exact email.
func (s *Synchronizer) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.client.GetUserByEmail(ctx, email)
}

// Apply merges the subscription attributes into the user's directory record.
// The update only happens when the event timestamp is strictly newer than the
// stored paddle_last_update; stale deliveries are dropped without touching
// any attribute. Returns whether a write happened.
func (s *Synchronizer) Apply(ctx context.Context, user *User, attrs SubscriptionAttributes) (bool, error) {
	if s.isStale(user, attrs.OccurredAt) {
		log.Infof("[Directory] Dropping stale update for user %s (sub %s)", user.ID, attrs.SubscriptionID)
		return false, nil
	}

	// Merge into the existing set so unrelated attributes survive.
	merged := make(map[string][]string, len(user.Attributes)+9)
	for k, v := range user.Attributes {
		merged[k] = v
	}
	setIfPresent(merged, AttrSubscriptionID, attrs.SubscriptionID)
	setIfPresent(merged, AttrStatus, attrs.Status)
	merged[AttrLastUpdate] = []string{attrs.OccurredAt.UTC().Format(time.RFC3339)}
	setIfPresent(merged, AttrCollectionMode, attrs.CollectionMode)
	setIfPresent(merged, AttrCustomerID, attrs.CustomerID)
	if attrs.ScheduledChange != "" {
		merged[AttrScheduledChange] = []string{attrs.ScheduledChange}
	} else {
		delete(merged, AttrScheduledChange)
	}
	if len(attrs.ProductIDs) > 0 {
		merged[AttrProductIDs] = attrs.ProductIDs
		merged[AttrPriceIDs] = attrs.PriceIDs
		quantities := make([]string, len(attrs.Quantities))
		for i, q := range attrs.Quantities {
			quantities[i] = strconv.Itoa(q)
		}
		merged[AttrQuantities] = quantities
	}

	if err := s.client.UpdateUserAttributes(ctx, user.ID, merged); err != nil {
		return false, err
	}
	user.Attributes = merged
	return true, nil
}

// setIfPresent writes a single-valued attribute, leaving any previously
// stored value alone when the incoming one is empty.
func setIfPresent(attrs map[string][]string, key, value string) {
	if value != "" {
		attrs[key] = []string{value}
	}
}

// isStale reports whether the stored paddle_last_update is at or past the
// incoming event timestamp.
func (s *Synchronizer) isStale(user *User, occurredAt time.Time) bool {
	values, ok := user.Attributes[AttrLastUpdate]
	if !ok || len(values) == 0 {
		return false
	}
	stored, err := time.Parse(time.RFC3339, values[0])
	if err != nil {
		// An unparsable stored value never blocks newer state.
		return false
	}
	return !occurredAt.After(stored)
}
