package controllers

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/planetaketo/storefront/internal/pkg/payments"
)

const testWebhookSecret = "whsec_test_secret"

// newWebhookTestApp wires the webhook route with a nil fulfillment service:
// any request that survives signature verification against expectation would
// panic, which is exactly the property under test.
func newWebhookTestApp() *fiber.App {
	stripeClient := payments.NewClient("sk_test_123", testWebhookSecret, payments.ProductConfig{})
	ctrl := NewWebhookController(stripeClient, nil)

	app := fiber.New()
	app.Post("/api/stripe/webhook", ctrl.HandleStripeWebhook)
	return app
}

func signatureHeader(payload []byte, secret string) string {
	ts := time.Now()
	sig := webhook.ComputeSignature(ts, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), fmt.Sprintf("%x", sig))
}

func TestHandleStripeWebhook_MissingSignature(t *testing.T) {
	app := newWebhookTestApp()

	req := httptest.NewRequest("POST", "/api/stripe/webhook", strings.NewReader(`{}`))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	app := newWebhookTestApp()

	req := httptest.NewRequest("POST", "/api/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=12345,v1=deadbeef")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleStripeWebhook_TamperedPayload(t *testing.T) {
	app := newWebhookTestApp()

	signed := []byte(`{"id":"evt_1","type":"charge.refunded"}`)
	header := signatureHeader(signed, testWebhookSecret)

	req := httptest.NewRequest("POST", "/api/stripe/webhook", strings.NewReader(`{"id":"evt_2","type":"charge.refunded"}`))
	req.Header.Set("Stripe-Signature", header)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleStripeWebhook_IgnoredEventType(t *testing.T) {
	app := newWebhookTestApp()

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"charge.refunded","api_version":%q,"data":{"object":{}}}`, stripe.APIVersion))
	req := httptest.NewRequest("POST", "/api/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signatureHeader(payload, testWebhookSecret))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
