package models

import "time"

// Customer links a Paddle customer to a local user by email match. When no
// local user carries the customer's email the link stays unresolved; the next
// delivery for the same customer gets another chance.
type Customer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_customer_id"`
	Email              string    `gorm:"type:varchar(200);not null;index" json:"email"`
	Name               string    `gorm:"type:varchar(200);default:''" json:"name"`
	UserID             *uint     `gorm:"index" json:"user_id,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
