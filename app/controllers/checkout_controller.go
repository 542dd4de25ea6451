package controllers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/planetaketo/storefront/internal/pkg/env"
	"github.com/planetaketo/storefront/internal/pkg/fulfillment"
	"github.com/planetaketo/storefront/internal/pkg/payments"
)

const checkoutTimeout = 20 * time.Second

// CheckoutController creates payment intents and checkout sessions, and
// finishes embedded-flow purchases.
type CheckoutController struct {
	stripe   *payments.Client
	svc      *fulfillment.Service
	validate *validator.Validate
}

// NewCheckoutController wires the checkout endpoints.
func NewCheckoutController(stripe *payments.Client, svc *fulfillment.Service) *CheckoutController {
	return &CheckoutController{stripe: stripe, svc: svc, validate: validator.New()}
}

type paymentIntentRequest struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Currency      string  `json:"currency" validate:"required,len=3"`
	CustomerEmail string  `json:"customer_email" validate:"omitempty,email"`
	CustomerName  string  `json:"customer_name" validate:"omitempty,max=255"`
}

// HandleCreatePaymentIntent starts the embedded payment flow. Customer data
// provided here travels in the intent metadata so the webhook can resolve the
// buyer later.
func (ctrl *CheckoutController) HandleCreatePaymentIntent(c *fiber.Ctx) error {
	var req paymentIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := ctrl.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	intent, err := ctrl.stripe.CreatePaymentIntent(ctx, payments.PaymentIntentInput{
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		log.Errorf("payment intent creation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_intent_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"client_secret":     intent.ClientSecret,
		"payment_intent_id": intent.ID,
	})
}

type checkoutSessionRequest struct {
	Amount        float64 `json:"amount" validate:"omitempty,gt=0"`
	CustomerEmail string  `json:"customer_email" validate:"omitempty,email"`
}

// HandleCreateCheckoutSession creates a hosted checkout session for the
// product. The price falls back to the configured default when the request
// does not carry one.
func (ctrl *CheckoutController) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var req checkoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := ctrl.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	amount := req.Amount
	if amount <= 0 {
		amount = defaultProductPrice()
	}

	baseURL := env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000")
	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	session, err := ctrl.stripe.CreateCheckoutSession(ctx, payments.CheckoutSessionInput{
		Amount:        amount,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    baseURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     baseURL + "/",
	})
	if err != nil {
		log.Errorf("checkout session creation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_session_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

type completePurchaseRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	CustomerName    string `json:"customer_name" validate:"required,max=255"`
	CustomerEmail   string `json:"customer_email" validate:"required,email"`
}

// HandleCompletePurchase finishes an embedded-flow purchase: the frontend
// calls it after payment with the customer data the payment form collected.
// It verifies the charge with Stripe and then enters the same orchestrator as
// the webhook, so the two paths dedupe against each other on the charge id.
func (ctrl *CheckoutController) HandleCompletePurchase(c *fiber.Ctx) error {
	var req completePurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := ctrl.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	intent, err := ctrl.stripe.RetrievePaymentIntent(ctx, req.PaymentIntentID)
	if err != nil {
		log.Errorf("payment intent %s lookup failed: %v", req.PaymentIntentID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_not_found"})
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_not_completed"})
	}

	result, err := ctrl.svc.ProcessEvent(ctx, payments.CheckoutEvent{
		Kind:            payments.KindIntentSucceeded,
		EventID:         fmt.Sprintf("manual:%s", intent.ID),
		EventType:       "payment_intent.succeeded",
		PaymentIntentID: intent.ID,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		Amount:          float64(intent.Amount) / 100,
		Currency:        string(intent.Currency),
	})
	if err != nil {
		log.Errorf("complete purchase for %s failed: %v", intent.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "purchase_failed"})
	}
	if result.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": true,
			"status":  "already_processed",
			"message": "El email ya fue enviado anteriormente",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":      true,
		"payment_uuid": result.PaymentUUID,
		"message":      "Purchase completed and email sent",
	})
}

func defaultProductPrice() float64 {
	raw := env.GetEnv("PRODUCT_PRICE", "19.75")
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 19.75
	}
	return price
}
