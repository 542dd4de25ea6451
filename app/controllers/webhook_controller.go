package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/planetaketo/storefront/internal/pkg/fulfillment"
	"github.com/planetaketo/storefront/internal/pkg/metrics/counter"
	"github.com/planetaketo/storefront/internal/pkg/payments"
)

const webhookTimeout = 15 * time.Second

// bumpCounter increments an operational counter. Counter failures never
// affect the request outcome.
func bumpCounter(field string) {
	if err := counter.Add(field); err != nil {
		log.Debugf("counter %s not recorded: %v", field, err)
	}
}

// WebhookController receives Stripe callbacks and feeds them into the
// fulfillment orchestrator.
type WebhookController struct {
	stripe *payments.Client
	svc    *fulfillment.Service
}

// NewWebhookController wires the webhook endpoint.
func NewWebhookController(stripe *payments.Client, svc *fulfillment.Service) *WebhookController {
	return &WebhookController{stripe: stripe, svc: svc}
}

// HandleStripeWebhook processes a provider callback. Signature verification
// happens before anything touches the database; a business-logic failure
// answers 500 so Stripe's own redelivery acts as the retry mechanism. This
// endpoint never redirects.
func (ctrl *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	event, err := ctrl.stripe.VerifyWebhook(rawBody, signature)
	if err != nil {
		log.Warnf("webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, handled, err := payments.NormalizeEvent(event)
	if err != nil {
		log.Errorf("webhook payload for event %s could not be parsed: %v", event.ID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !handled {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	// Session payloads do not always carry the buyer email inline.
	if ev.Kind == payments.KindSessionCompleted {
		if err := ctrl.stripe.EnrichFromCustomer(ctx, &ev); err != nil {
			log.Warnf("could not enrich event %s from stripe customer: %v", ev.EventID, err)
		}
	}

	result, err := ctrl.svc.ProcessEvent(ctx, ev)
	if err != nil {
		bumpCounter(counter.WebhooksFailed)
		if errors.Is(err, fulfillment.ErrMissingEmail) {
			log.Errorf("event %s rejected: %v", ev.EventID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "no_customer_email"})
		}
		log.Errorf("processing event %s failed: %v", ev.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	if result.Duplicate {
		bumpCounter(counter.WebhooksDuplicate)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	bumpCounter(counter.WebhooksProcessed)
	if result.Actions.EmailSent {
		bumpCounter(counter.EmailsSent)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
