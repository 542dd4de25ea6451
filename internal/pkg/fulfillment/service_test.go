package fulfillment

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/planetaketo/storefront/app/models"
	"github.com/planetaketo/storefront/internal/pkg/payments"
)

func testConfig() Config {
	return Config{
		ProductName:    "Método Keto 70 Días",
		PDFFileName:    "metodo-keto.pdf",
		Currency:       "eur",
		DownloadLimit:  2,
		BaseURL:        "https://planetaketo.es",
		WhatsAppNumber: "+19176726696",
	}
}

func newTestService() (*Service, *memoryRepository, *fakeMailer, *fakeStore) {
	repo := newMemoryRepository()
	mailer := &fakeMailer{}
	store := &fakeStore{data: []byte("%PDF-1.4 test")}
	svc := NewService(repo, mailer, store, testConfig())
	return svc, repo, mailer, store
}

func testEvent() payments.CheckoutEvent {
	return payments.CheckoutEvent{
		Kind:            payments.KindSessionCompleted,
		EventID:         "evt_test_001",
		EventType:       "checkout.session.completed",
		PaymentIntentID: "pi_test_001",
		SessionID:       "cs_test_001",
		CustomerEmail:   "ana@example.com",
		CustomerName:    "Ana García",
		Country:         "ES",
		Amount:          19.75,
		Currency:        "eur",
	}
}

func TestProcessEvent_FullPipeline(t *testing.T) {
	svc, repo, mailer, _ := newTestService()

	result, err := svc.ProcessEvent(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("ProcessEvent failed: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("first delivery must not be reported as duplicate")
	}
	if result.PaymentUUID == "" {
		t.Fatalf("expected a payment uuid")
	}
	if !result.Actions.MagicLinkCreated || !result.Actions.EmailSent {
		t.Fatalf("expected link + email actions, got %+v", result.Actions)
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("expected exactly one email, got %d", mailer.sentCount())
	}

	customer, err := repo.GetCustomerByEmail("ana@example.com")
	if err != nil {
		t.Fatalf("customer was not created: %v", err)
	}
	if customer.Name != "Ana García" || customer.Country != "ES" {
		t.Fatalf("customer fields not stored: %+v", customer)
	}

	payment, err := repo.GetPaymentByStripePaymentID("pi_test_001")
	if err != nil {
		t.Fatalf("payment was not created: %v", err)
	}
	if !payment.MagicLinkCreated || !payment.EmailSent {
		t.Fatalf("payment flags not set: %+v", payment)
	}
	if payment.Status != models.PaymentStatusPaid {
		t.Fatalf("payment status = %q, want %q", payment.Status, models.PaymentStatusPaid)
	}

	link, err := repo.GetDownloadLinkByPaymentID(payment.ID)
	if err != nil {
		t.Fatalf("download link was not created: %v", err)
	}
	if link.MaxDownloads != 2 {
		t.Fatalf("link max downloads = %d, want 2", link.MaxDownloads)
	}

	event, err := repo.GetWebhookEventByProviderEventID("evt_test_001")
	if err != nil {
		t.Fatalf("ledger entry missing: %v", err)
	}
	if event.Status != models.WebhookStatusCompleted || event.ProcessingStep != StepCompleted {
		t.Fatalf("ledger not completed: status=%q step=%q", event.Status, event.ProcessingStep)
	}
	if event.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
}

func TestProcessEvent_RedeliveryIsDuplicate(t *testing.T) {
	svc, _, mailer, _ := newTestService()

	if _, err := svc.ProcessEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	result, err := svc.ProcessEvent(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("redelivery of a completed event must be a duplicate")
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("redelivery sent another email: %d total", mailer.sentCount())
	}
}

func TestProcessEvent_DifferentEventSameCharge(t *testing.T) {
	svc, repo, mailer, _ := newTestService()

	if _, err := svc.ProcessEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("first event failed: %v", err)
	}

	// Same charge arrives again under a new provider event id, e.g. the
	// intent event after the session event.
	second := testEvent()
	second.Kind = payments.KindIntentSucceeded
	second.EventID = "evt_test_002"
	second.EventType = "payment_intent.succeeded"

	result, err := svc.ProcessEvent(context.Background(), second)
	if err != nil {
		t.Fatalf("second event failed: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("second event for a fulfilled charge must be a duplicate")
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("expected one email, got %d", mailer.sentCount())
	}

	count := 0
	for range repo.links {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one download link, got %d", count)
	}
}

func TestProcessEvent_MissingEmailIsFatal(t *testing.T) {
	svc, repo, mailer, _ := newTestService()

	ev := testEvent()
	ev.CustomerEmail = "  "

	_, err := svc.ProcessEvent(context.Background(), ev)
	if !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
	if mailer.sentCount() != 0 {
		t.Fatalf("no email must be sent without a recipient")
	}

	event, err := repo.GetWebhookEventByProviderEventID(ev.EventID)
	if err != nil {
		t.Fatalf("ledger entry missing: %v", err)
	}
	if event.Status != models.WebhookStatusFailed {
		t.Fatalf("ledger status = %q, want failed", event.Status)
	}
	if event.ErrorMessage == "" || event.ErrorStack == "" {
		t.Fatalf("failure must record message and stack")
	}
}

func TestProcessEvent_MissingPaymentIntentRejected(t *testing.T) {
	svc, repo, _, _ := newTestService()

	ev := testEvent()
	ev.PaymentIntentID = ""

	if _, err := svc.ProcessEvent(context.Background(), ev); err == nil {
		t.Fatalf("expected error for event without payment intent")
	}
	if _, err := repo.GetWebhookEventByProviderEventID(ev.EventID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("rejected event must not leave a ledger entry")
	}
}

func TestProcessEvent_ResumesAfterEmailFailure(t *testing.T) {
	svc, repo, mailer, _ := newTestService()

	mailer.fail = true
	mailer.err = errors.New("smtp unavailable")

	_, err := svc.ProcessEvent(context.Background(), testEvent())
	if err == nil {
		t.Fatalf("expected failure while mailer is down")
	}

	event, _ := repo.GetWebhookEventByProviderEventID("evt_test_001")
	if event.Status != models.WebhookStatusFailed || event.ProcessingStep != StepEmailSend {
		t.Fatalf("ledger should record failed email step: status=%q step=%q", event.Status, event.ProcessingStep)
	}
	payment, _ := repo.GetPaymentByStripePaymentID("pi_test_001")
	if !payment.MagicLinkCreated || payment.EmailSent {
		t.Fatalf("partial progress flags wrong: %+v", payment)
	}

	// Redelivery after the mailer recovers performs only the missing step.
	mailer.fail = false
	result, err := svc.ProcessEvent(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("resumed run is not a duplicate")
	}
	if result.Actions.MagicLinkCreated {
		t.Fatalf("link already existed, must not be reported as created")
	}
	if !result.Actions.EmailSent {
		t.Fatalf("email step must run on resume")
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("expected one email total, got %d", mailer.sentCount())
	}

	count := 0
	for range repo.links {
		count++
	}
	if count != 1 {
		t.Fatalf("resume must reuse the existing link, got %d links", count)
	}
}

func TestProcessEvent_CacheFastPath(t *testing.T) {
	svc, _, mailer, _ := newTestService()
	cache := newFakeEventCache()
	svc.WithEventCache(cache)

	if _, err := svc.ProcessEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if !cache.IsCompleted("evt_test_001") {
		t.Fatalf("completed event must be marked in the cache")
	}

	result, err := svc.ProcessEvent(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("cached redelivery failed: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("cached event must short-circuit as duplicate")
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("expected one email, got %d", mailer.sentCount())
	}
}

func TestRetry_ResendsMissingEmail(t *testing.T) {
	svc, repo, mailer, _ := newTestService()

	mailer.fail = true
	mailer.err = errors.New("smtp unavailable")
	if _, err := svc.ProcessEvent(context.Background(), testEvent()); err == nil {
		t.Fatalf("expected failure while mailer is down")
	}
	mailer.fail = false

	event, _ := repo.GetWebhookEventByProviderEventID("evt_test_001")
	result, err := svc.Retry(context.Background(), RetryInput{WebhookEventID: event.ID})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Actions.PaymentRecreated {
		t.Fatalf("payment existed, must not be recreated")
	}
	if !result.Actions.EmailSent {
		t.Fatalf("retry must send the missing email")
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("expected one email, got %d", mailer.sentCount())
	}

	event, _ = repo.GetWebhookEventByProviderEventID("evt_test_001")
	if event.Status != models.WebhookStatusCompleted || event.ProcessingStep != StepCompletedViaRetry {
		t.Fatalf("ledger after retry: status=%q step=%q", event.Status, event.ProcessingStep)
	}
	if event.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", event.RetryCount)
	}
}

func TestRetry_ByPaymentIntent(t *testing.T) {
	svc, _, mailer, _ := newTestService()

	mailer.fail = true
	mailer.err = errors.New("smtp unavailable")
	if _, err := svc.ProcessEvent(context.Background(), testEvent()); err == nil {
		t.Fatalf("expected failure while mailer is down")
	}
	mailer.fail = false

	result, err := svc.Retry(context.Background(), RetryInput{PaymentIntentID: "pi_test_001"})
	if err != nil {
		t.Fatalf("retry by payment intent failed: %v", err)
	}
	if !result.Actions.EmailSent {
		t.Fatalf("retry must send the missing email")
	}
}

func TestRetry_RecreatesMissingPayment(t *testing.T) {
	svc, repo, mailer, _ := newTestService()

	// Customer and ledger entry exist, the payment row is gone.
	customer := &models.Customer{Email: "ana@example.com", Name: "Ana García", Country: "ES"}
	if err := repo.UpsertCustomer(customer); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	_, event, err := repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		ProviderEventID:     "evt_lost_payment",
		EventType:           "checkout.session.completed",
		StripePaymentIntent: "pi_lost_001",
		CustomerEmail:       "ana@example.com",
		Amount:              19.75,
		Currency:            "eur",
		Status:              models.WebhookStatusFailed,
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	result, err := svc.Retry(context.Background(), RetryInput{WebhookEventID: event.ID})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !result.Actions.PaymentRecreated {
		t.Fatalf("expected payment to be recreated")
	}
	if !result.Actions.MagicLinkCreated || !result.Actions.EmailSent {
		t.Fatalf("expected full fulfillment, got %+v", result.Actions)
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("expected one email, got %d", mailer.sentCount())
	}

	payment, err := repo.GetPaymentByStripePaymentID("pi_lost_001")
	if err != nil {
		t.Fatalf("recreated payment missing: %v", err)
	}
	if payment.Amount != 19.75 || payment.CustomerID != customer.ID {
		t.Fatalf("recreated payment fields wrong: %+v", payment)
	}
}

func TestRetry_CustomerGoneIsExplicit(t *testing.T) {
	svc, repo, _, _ := newTestService()

	_, event, err := repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		ProviderEventID:     "evt_orphan",
		StripePaymentIntent: "pi_orphan_001",
		CustomerEmail:       "gone@example.com",
		Status:              models.WebhookStatusFailed,
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	_, err = svc.Retry(context.Background(), RetryInput{WebhookEventID: event.ID})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestRetry_InputValidation(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.Retry(context.Background(), RetryInput{}); !errors.Is(err, ErrRetryInputRequired) {
		t.Fatalf("expected ErrRetryInputRequired, got %v", err)
	}
	if _, err := svc.Retry(context.Background(), RetryInput{WebhookEventID: 999}); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound for unknown id, got %v", err)
	}
	if _, err := svc.Retry(context.Background(), RetryInput{PaymentIntentID: "pi_unknown"}); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound for unknown intent, got %v", err)
	}
}
