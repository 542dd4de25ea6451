package models

import "time"

// Customer is the buyer identity resolved from a successful payment. Email is
// the upsert key: a second purchase with the same address updates name and
// country instead of creating a duplicate row.
type Customer struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Email            string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_customers_email" json:"email"`
	Name             string    `gorm:"type:varchar(255);not null;default:''" json:"name"`
	Country          string    `gorm:"type:varchar(32);not null;default:'Unknown'" json:"country"`
	StripeCustomerID string    `gorm:"type:varchar(191);index" json:"stripe_customer_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
