package models

import "time"

// Organization groups users under an owning account. Subscriptions whose
// items match configured organization price ids are attached to the first
// organization owned by the resolved user, ordered by primary key.
type Organization struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	OwnerUserID uint      `gorm:"not null;index" json:"owner_user_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
