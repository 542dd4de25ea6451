package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/planetaketo/storefront/internal/pkg/env"
)

// ProductConfig carries the storefront product constants that used to live in
// process-wide state. It is injected so the pipeline is testable without
// environment mutation.
type ProductConfig struct {
	Name        string
	Description string
	Currency    string
	PDFFileName string
	BucketName  string
}

// ProductConfigFromEnv loads the product constants with the shipped defaults.
func ProductConfigFromEnv() ProductConfig {
	return ProductConfig{
		Name:        env.GetEnv("PRODUCT_NAME", "Método Keto 70 Días - Planeta Keto"),
		Description: env.GetEnv("PRODUCT_DESCRIPTION", "Acceso completo al método keto definitivo con recetas, calculadoras y listas de compras"),
		Currency:    env.GetEnv("PRODUCT_CURRENCY", "eur"),
		PDFFileName: env.GetEnv("PRODUCT_PDF_FILENAME", "El Metodo keto Definitivo - Planeta Keto.pdf"),
		BucketName:  env.GetEnv("PRODUCT_BUCKET", "producto"),
	}
}

// Client wraps the Stripe SDK with the few calls the fulfillment pipeline
// needs: webhook verification, intent/session creation and customer lookup.
type Client struct {
	api           *client.API
	webhookSecret string
	product       ProductConfig
}

// NewClient creates a Stripe client from explicit credentials.
func NewClient(secretKey, webhookSecret string, product ProductConfig) *Client {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Client{api: api, webhookSecret: webhookSecret, product: product}
}

// NewClientFromEnv creates a Stripe client from environment configuration.
func NewClientFromEnv() *Client {
	return NewClient(
		env.GetEnv("STRIPE_SECRET_KEY", ""),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		ProductConfigFromEnv(),
	)
}

// Product returns the injected product constants.
func (c *Client) Product() ProductConfig {
	return c.product
}

// VerifyWebhook checks the Stripe-Signature header against the shared secret
// and parses the payload. It must be called before any processing; a failure
// here means the request is rejected without touching the database.
func (c *Client) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return stripe.Event{}, errors.New("missing Stripe-Signature header")
	}
	return webhook.ConstructEvent(payload, signatureHeader, c.webhookSecret)
}

// PaymentIntentInput is the request shape for the embedded payment flow.
// Email and name are optional; when present they travel in the intent
// metadata so the webhook can resolve the customer without a checkout
// session.
type PaymentIntentInput struct {
	Amount        float64
	Currency      string
	CustomerEmail string
	CustomerName  string
}

// CreatePaymentIntent creates an embedded-flow payment intent carrying the
// product constants as metadata.
func (c *Client) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(in.Amount)),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Description: stripe.String(c.product.Name),
	}
	params.Context = ctx
	params.AddMetadata("product_name", c.product.Name)
	params.AddMetadata("pdf_file_name", c.product.PDFFileName)
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.AddMetadata("customer_email", email)
	}
	if name := strings.TrimSpace(in.CustomerName); name != "" {
		params.AddMetadata("customer_name", name)
	}
	return c.api.PaymentIntents.New(params)
}

// RetrievePaymentIntent loads an intent for the complete-purchase
// verification path.
func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return c.api.PaymentIntents.Get(id, params)
}

// CheckoutSessionInput is the request shape for the hosted checkout flow.
type CheckoutSessionInput struct {
	Amount        float64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CreateCheckoutSession creates a hosted checkout session for the product.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.product.Currency),
					UnitAmount: stripe.Int64(toCents(in.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(c.product.Name),
						Description: stripe.String(c.product.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:               stripe.String(in.SuccessURL),
		CancelURL:                stripe.String(in.CancelURL),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	params.Context = ctx
	params.AddMetadata("product_name", c.product.Name)
	params.AddMetadata("pdf_file_name", c.product.PDFFileName)
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	return c.api.CheckoutSessions.New(params)
}

// EnrichFromCustomer fills missing email/name on a normalized event by
// retrieving the Stripe customer object. Session payloads do not always carry
// the email inline.
func (c *Client) EnrichFromCustomer(ctx context.Context, ev *CheckoutEvent) error {
	if ev.StripeCustomerID == "" {
		return nil
	}
	if ev.CustomerEmail != "" && ev.CustomerName != "" {
		return nil
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := c.api.Customers.Get(ev.StripeCustomerID, params)
	if err != nil {
		return fmt.Errorf("retrieve stripe customer %s: %w", ev.StripeCustomerID, err)
	}
	if ev.CustomerEmail == "" {
		ev.CustomerEmail = cust.Email
	}
	if ev.CustomerName == "" {
		ev.CustomerName = cust.Name
	}
	return nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
