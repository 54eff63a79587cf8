package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPaused   = "paused"
)

const (
	CollectionModeAutomatic = "automatic"
	CollectionModeManual    = "manual"
)

// Subscription mirrors a Paddle subscription. The provider subscription id is
// the upsert key; UserID/OrganizationID are only filled in when resolution
// succeeds and are never nulled out by a later event that resolves nothing.
// IsOrgSubscription is sticky: once true it stays true regardless of what
// later item sets look like.
type Subscription struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	ProviderSubscriptionID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_subscription_id"`
	ProviderCustomerID     string    `gorm:"type:varchar(191);not null;index" json:"provider_customer_id"`
	Status                 string    `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CollectionMode         string    `gorm:"type:varchar(16);not null;default:'automatic'" json:"collection_mode"`
	Quantity               int       `gorm:"not null;default:1" json:"quantity"`
	UserID                 *uint     `gorm:"index" json:"user_id,omitempty"`
	OrganizationID         *uint     `gorm:"index" json:"organization_id,omitempty"`
	IsOrgSubscription      bool      `gorm:"default:false" json:"is_org_subscription"`
	RawPayloadJSON         string    `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items []SubscriptionItem `gorm:"foreignKey:SubscriptionID" json:"items,omitempty"`
}
