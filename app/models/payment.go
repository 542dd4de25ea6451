package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentStatusPaid = "paid"
)

// Payment is the durable record of one successful charge. The unique index on
// stripe_payment_id makes "already fulfilled this charge" a constraint check,
// which also catches two different provider events referring to the same
// charge. The two flags track which fulfillment side effects already ran so a
// retry only performs the missing steps.
type Payment struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UUID             string     `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	CustomerID       uint       `gorm:"not null;index" json:"customer_id"`
	Customer         *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	StripePaymentID  string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_stripe_payment_id" json:"stripe_payment_id"`
	StripeSessionID  string     `gorm:"type:varchar(191);index" json:"stripe_session_id"`
	Amount           float64    `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency         string     `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	Status           string     `gorm:"type:varchar(32);not null;default:'paid'" json:"status"`
	ProductName      string     `gorm:"type:varchar(255);not null" json:"product_name"`
	MagicLinkCreated bool       `gorm:"not null;default:false" json:"magic_link_created"`
	EmailSent        bool       `gorm:"not null;default:false" json:"email_sent"`
	EmailSentAt      *time.Time `gorm:"type:timestamp;default:null" json:"email_sent_at,omitempty"`
	WebhookEventID   *uint      `gorm:"index" json:"webhook_event_id,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the public UUID before the row is inserted.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}
