package models

import "time"

// SubscriptionItem is a child row of Subscription. The provider snapshot is
// authoritative for the complete item set, so updates replace all rows for a
// subscription instead of diffing them.
type SubscriptionItem struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID uint      `gorm:"not null;index" json:"subscription_id"`
	ProductID      string    `gorm:"type:varchar(191);not null;default:''" json:"product_id"`
	PriceID        string    `gorm:"type:varchar(191);not null;default:''" json:"price_id"`
	Quantity       int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
