package models

import "time"

// Business mirrors a Paddle business entity and links to the Customer record
// with the same provider customer id. Deliveries for an unknown customer are
// skipped, not retried.
type Business struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ProviderBusinessID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_business_id"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;index" json:"provider_customer_id"`
	Name               string    `gorm:"type:varchar(200);default:''" json:"name"`
	CompanyNumber      string    `gorm:"type:varchar(100);default:''" json:"company_number"`
	TaxIdentifier      string    `gorm:"type:varchar(100);default:''" json:"tax_identifier"`
	CustomerID         *uint     `gorm:"index" json:"customer_id,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
