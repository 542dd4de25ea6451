package fulfillment

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/planetaketo/storefront/app/models"
	"github.com/planetaketo/storefront/internal/pkg/payments"
)

// Ledger step labels. They are stored on the webhook event row so a failed
// run shows exactly where it stopped.
const (
	StepReceived          = "webhook_received"
	StepCustomerUpsert    = "customer_upsert"
	StepPaymentCreate     = "payment_create"
	StepMagicLink         = "magic_link"
	StepEmailSend         = "email_send"
	StepCompleted         = "completed"
	StepCompletedViaRetry = "completed_via_retry"
)

// RecordReceived inserts the ledger row for a provider event before any
// side-effecting work begins. The unique constraint on provider_event_id
// makes the insert the deduplication gate: created=false means the event was
// seen before and the stored row tells the caller how far it got.
func (s *Service) RecordReceived(ctx context.Context, ev payments.CheckoutEvent) (bool, *models.WebhookEvent, error) {
	_ = ctx
	event := &models.WebhookEvent{
		ProviderEventID:     ev.EventID,
		EventType:           ev.EventType,
		StripeSessionID:     ev.SessionID,
		StripePaymentIntent: ev.PaymentIntentID,
		CustomerEmail:       ev.CustomerEmail,
		Amount:              ev.Amount,
		Currency:            ev.Currency,
		Status:              models.WebhookStatusReceived,
		ProcessingStep:      StepReceived,
		RawEvent:            string(ev.RawJSON),
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// IsProcessed reports whether an event already completed. A row in
// processing or failed state is not considered processed so redelivery can
// resume it. The cache is a fast path only; the database stays authoritative.
func (s *Service) IsProcessed(ctx context.Context, providerEventID string) bool {
	if providerEventID == "" {
		return false
	}
	if s.eventCache != nil && s.eventCache.IsCompleted(providerEventID) {
		return true
	}
	event, err := s.repo.GetWebhookEventByProviderEventID(providerEventID)
	if err != nil {
		return false
	}
	return event.Status == models.WebhookStatusCompleted
}

func (s *Service) recordStep(eventID uint, step string, extra map[string]interface{}) {
	if eventID == 0 {
		return
	}
	updates := map[string]interface{}{
		"status":          models.WebhookStatusProcessing,
		"processing_step": step,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := s.repo.UpdateWebhookEvent(eventID, updates); err != nil {
		log.Errorf("failed to record step %q on webhook event %d: %v", step, eventID, err)
	}
}

func (s *Service) recordCompleted(eventID uint, step string) {
	if eventID == 0 {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.WebhookStatusCompleted,
		"processing_step": step,
		"completed_at":    &now,
	}
	if err := s.repo.UpdateWebhookEvent(eventID, updates); err != nil {
		log.Errorf("failed to record completion on webhook event %d: %v", eventID, err)
	}
}

func (s *Service) recordFailed(eventID uint, cause error, step string) {
	if eventID == 0 {
		return
	}
	updates := map[string]interface{}{
		"status":          models.WebhookStatusFailed,
		"processing_step": step,
		"error_message":   cause.Error(),
		"error_stack":     string(debug.Stack()),
	}
	if err := s.repo.UpdateWebhookEvent(eventID, updates); err != nil {
		log.Errorf("failed to record failure on webhook event %d: %v", eventID, err)
	}
}

func (s *Service) recordRetry(event *models.WebhookEvent) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":        models.WebhookStatusRetrying,
		"retry_count":   event.RetryCount + 1,
		"last_retry_at": &now,
	}
	if err := s.repo.UpdateWebhookEvent(event.ID, updates); err != nil {
		log.Errorf("failed to record retry on webhook event %d: %v", event.ID, err)
	}
}

func (s *Service) markEventCompleted(providerEventID string) {
	if s.eventCache != nil && providerEventID != "" {
		s.eventCache.MarkCompleted(providerEventID)
	}
}
