package models

import "time"

const (
	WebhookStatusReceived   = "received"
	WebhookStatusProcessing = "processing"
	WebhookStatusCompleted  = "completed"
	WebhookStatusFailed     = "failed"
	WebhookStatusRetrying   = "retrying"
)

// WebhookEvent is the idempotency ledger for provider callbacks. The unique
// index on provider_event_id is the deduplication lock: a redelivered event
// hits the constraint instead of being processed twice. Amount, currency and
// email are denormalized for audit and for payment reconstruction during
// operator recovery.
type WebhookEvent struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ProviderEventID     string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event_id" json:"provider_event_id"`
	EventType           string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	StripeSessionID     string     `gorm:"type:varchar(191);index" json:"stripe_session_id"`
	StripePaymentIntent string     `gorm:"type:varchar(191);index" json:"stripe_payment_intent"`
	CustomerEmail       string     `gorm:"type:varchar(255)" json:"customer_email"`
	Amount              float64    `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Currency            string     `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	Status              string     `gorm:"type:varchar(16);not null;default:'received';index" json:"status"`
	ProcessingStep      string     `gorm:"type:varchar(64);not null;default:''" json:"processing_step"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message"`
	ErrorStack          string     `gorm:"type:text" json:"error_stack"`
	RetryCount          int        `gorm:"not null;default:0" json:"retry_count"`
	RawEvent            string     `gorm:"type:longtext" json:"raw_event"`
	CompletedAt         *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	LastRetryAt         *time.Time `gorm:"type:timestamp;default:null" json:"last_retry_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
