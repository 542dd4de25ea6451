package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
)

// EventKind tags the two provider event variants that trigger fulfillment.
// Both variants reduce to the same normalized shape so the orchestrator has a
// single entry point instead of near-duplicate per-type handlers.
type EventKind string

const (
	KindSessionCompleted EventKind = "session_completed"
	KindIntentSucceeded  EventKind = "intent_succeeded"
)

// CheckoutEvent is the normalized fulfillment trigger extracted from a
// provider event. PaymentIntentID is the charge identity and the idempotency
// key for "already fulfilled"; EventID is the delivery identity and the key
// for "already seen this callback".
type CheckoutEvent struct {
	Kind             EventKind
	EventID          string
	EventType        string
	PaymentIntentID  string
	SessionID        string
	StripeCustomerID string
	CustomerEmail    string
	CustomerName     string
	Country          string
	Amount           float64
	Currency         string
	RawJSON          []byte
}

// NormalizeEvent converts a verified Stripe event into a CheckoutEvent.
// The second return value is false for event types the pipeline ignores.
func NormalizeEvent(event stripe.Event) (CheckoutEvent, bool, error) {
	switch event.Type {
	case "checkout.session.completed":
		ev, err := normalizeSession(event)
		return ev, true, err
	case "payment_intent.succeeded":
		ev, err := normalizeIntent(event)
		return ev, true, err
	default:
		return CheckoutEvent{}, false, nil
	}
}

func normalizeSession(event stripe.Event) (CheckoutEvent, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return CheckoutEvent{}, fmt.Errorf("parse checkout session payload: %w", err)
	}

	ev := CheckoutEvent{
		Kind:      KindSessionCompleted,
		EventID:   event.ID,
		EventType: string(event.Type),
		SessionID: session.ID,
		Amount:    float64(session.AmountTotal) / 100,
		Currency:  currencyOrDefault(string(session.Currency)),
		RawJSON:   append([]byte(nil), event.Data.Raw...),
	}
	if session.PaymentIntent != nil {
		ev.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		ev.StripeCustomerID = session.Customer.ID
	}
	ev.CustomerEmail = session.CustomerEmail
	if details := session.CustomerDetails; details != nil {
		if ev.CustomerEmail == "" {
			ev.CustomerEmail = details.Email
		}
		ev.CustomerName = details.Name
		if details.Address != nil && details.Address.Country != "" {
			ev.Country = details.Address.Country
		}
	}
	if ev.PaymentIntentID == "" {
		return CheckoutEvent{}, fmt.Errorf("checkout session %s has no payment intent", session.ID)
	}
	return ev, nil
}

func normalizeIntent(event stripe.Event) (CheckoutEvent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return CheckoutEvent{}, fmt.Errorf("parse payment intent payload: %w", err)
	}
	if intent.ID == "" {
		return CheckoutEvent{}, fmt.Errorf("payment intent event %s has no intent id", event.ID)
	}

	ev := CheckoutEvent{
		Kind:            KindIntentSucceeded,
		EventID:         event.ID,
		EventType:       string(event.Type),
		PaymentIntentID: intent.ID,
		Amount:          float64(intent.Amount) / 100,
		Currency:        currencyOrDefault(string(intent.Currency)),
		RawJSON:         append([]byte(nil), event.Data.Raw...),
	}
	if intent.Customer != nil {
		ev.StripeCustomerID = intent.Customer.ID
	}
	// Embedded flow: customer identity travels in metadata set at
	// charge-creation time.
	ev.CustomerEmail = firstNonEmpty(intent.Metadata["customer_email"], intent.ReceiptEmail)
	ev.CustomerName = intent.Metadata["customer_name"]
	return ev, nil
}

func currencyOrDefault(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return "eur"
	}
	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
