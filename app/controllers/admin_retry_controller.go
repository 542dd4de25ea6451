package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/planetaketo/storefront/internal/pkg/fulfillment"
	"github.com/planetaketo/storefront/internal/pkg/metrics/counter"
)

const retryTimeout = 30 * time.Second

// AdminController exposes the operator recovery endpoint.
type AdminController struct {
	svc *fulfillment.Service
}

// NewAdminController wires the admin endpoints.
func NewAdminController(svc *fulfillment.Service) *AdminController {
	return &AdminController{svc: svc}
}

// HandleRetryWebhook re-runs fulfillment for a stalled or failed payment,
// identified by ledger entry or charge id, and reports which sub-steps were
// actually executed.
func (ctrl *AdminController) HandleRetryWebhook(c *fiber.Ctx) error {
	var in fulfillment.RetryInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), retryTimeout)
	defer cancel()

	result, err := ctrl.svc.Retry(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrRetryInputRequired):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, fulfillment.ErrEventNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, fulfillment.ErrCustomerNotFound):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Errorf("webhook retry failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":          true,
		"webhook_event_id": result.WebhookEventID,
		"payment_uuid":     result.PaymentUUID,
		"actions":          result.Actions,
	})
}

// HandleStats returns the operational counters for one day, today by default.
func (ctrl *AdminController) HandleStats(c *fiber.Ctx) error {
	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_date", "message": "expected YYYY-MM-DD"})
		}
		day = parsed
	}

	counters, err := counter.Snapshot(day)
	if err != nil {
		log.Errorf("counter snapshot failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"date":     day.Format("2006-01-02"),
		"counters": counters,
	})
}
