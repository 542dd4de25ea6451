package fulfillment

import (
	"errors"
	"strconv"
	"time"

	"github.com/planetaketo/storefront/internal/pkg/env"
)

// Config carries the pipeline constants. It is injected into the service so
// tests never have to mutate process-wide environment state.
type Config struct {
	ProductName    string
	PDFFileName    string
	Currency       string
	DownloadLimit  int
	LinkExpiry     time.Duration // zero means links never expire
	BaseURL        string
	WhatsAppNumber string
}

// ConfigFromEnv loads the pipeline configuration with the shipped defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		ProductName:    env.GetEnv("PRODUCT_NAME", "Método Keto 70 Días - Planeta Keto"),
		PDFFileName:    env.GetEnv("PRODUCT_PDF_FILENAME", "El Metodo keto Definitivo - Planeta Keto.pdf"),
		Currency:       env.GetEnv("PRODUCT_CURRENCY", "eur"),
		DownloadLimit:  2,
		BaseURL:        env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000"),
		WhatsAppNumber: env.GetEnv("SUPPORT_WHATSAPP", "+19176726696"),
	}
	if raw := env.GetEnv("DOWNLOAD_LINK_EXPIRY_HOURS", ""); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			cfg.LinkExpiry = time.Duration(hours) * time.Hour
		}
	}
	return cfg
}

// Sentinel errors surfaced by the pipeline. Controllers map them to HTTP
// status codes; everything else is a 5xx that signals the provider to
// redeliver.
var (
	// ErrMissingEmail means no customer email could be resolved from the
	// provider payload. Fatal for the attempt: there is no other channel to
	// reach the buyer.
	ErrMissingEmail = errors.New("no customer email found")

	// ErrCustomerNotFound is returned by operator recovery when the payment
	// record is gone and the ledger row alone is not enough to rebuild it.
	ErrCustomerNotFound = errors.New("customer not found and cannot be recreated from webhook log alone")

	// ErrEventNotFound means no ledger entry matches the recovery input.
	ErrEventNotFound = errors.New("webhook log not found")

	// ErrRetryInputRequired means the recovery request named neither a
	// ledger entry nor a charge.
	ErrRetryInputRequired = errors.New("webhook_event_id or payment_intent_id is required")

	// ErrLinkNotFound means the token was never issued.
	ErrLinkNotFound = errors.New("invalid download link")

	// ErrLinkExhausted means the download limit is reached.
	ErrLinkExhausted = errors.New("download limit reached")

	// ErrLinkExpired means the optional link expiry has passed.
	ErrLinkExpired = errors.New("download link expired")
)

// Actions reports which fulfillment sub-steps a run actually executed, so an
// operator can see what a retry did.
type Actions struct {
	PaymentRecreated bool `json:"payment_recreated"`
	MagicLinkCreated bool `json:"magic_link_created"`
	EmailSent        bool `json:"email_sent"`
}

// ProcessResult is the outcome of a callback-driven fulfillment run.
type ProcessResult struct {
	Duplicate   bool
	PaymentUUID string
	Actions     Actions
}

// RetryInput identifies the fulfillment to recover, either by ledger entry or
// by charge identifier.
type RetryInput struct {
	WebhookEventID  uint   `json:"webhook_event_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// RetryResult reports what an operator-triggered recovery run executed.
type RetryResult struct {
	WebhookEventID uint    `json:"webhook_event_id"`
	PaymentUUID    string  `json:"payment_uuid"`
	Actions        Actions `json:"actions"`
}
