package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/planetaketo/storefront/app/models"
	"github.com/planetaketo/storefront/internal/pkg/mail"
	"github.com/planetaketo/storefront/internal/pkg/payments"
	"github.com/planetaketo/storefront/internal/pkg/productstore"
)

// Service is the fulfillment orchestrator: it turns a normalized provider
// event into a customer record, a payment record, a download credential and a
// delivery email, exactly once. It is stateless; all coordination lives in
// the database constraints managed by the Repository.
type Service struct {
	repo       Repository
	mailer     mail.Mailer
	store      productstore.Store
	eventCache EventCache
	cfg        Config
}

// NewService creates a fulfillment service from injected dependencies.
func NewService(repo Repository, mailer mail.Mailer, store productstore.Store, cfg Config) *Service {
	if cfg.DownloadLimit <= 0 {
		cfg.DownloadLimit = 2
	}
	return &Service{repo: repo, mailer: mailer, store: store, cfg: cfg}
}

// NewServiceFromDB creates a fulfillment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, mailer mail.Mailer, store productstore.Store, cfg Config) *Service {
	return NewService(NewRepository(db), mailer, store, cfg)
}

// WithEventCache attaches the optional completed-event fast path.
func (s *Service) WithEventCache(c EventCache) *Service {
	s.eventCache = c
	return s
}

// ProcessEvent runs the callback-driven fulfillment path. Every step that
// already succeeded on a previous delivery is a no-op here: the ledger row,
// the payment row and the download link are all create-if-not-exists, and the
// email is guarded by the email_sent flag. An error return means the caller
// should answer non-2xx so the provider redelivers.
func (s *Service) ProcessEvent(ctx context.Context, ev payments.CheckoutEvent) (*ProcessResult, error) {
	if ev.PaymentIntentID == "" {
		return nil, fmt.Errorf("event %s carries no payment intent id", ev.EventID)
	}

	if s.IsProcessed(ctx, ev.EventID) {
		return &ProcessResult{Duplicate: true}, nil
	}

	created, event, err := s.RecordReceived(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("persist webhook event: %w", err)
	}
	if !created && event.Status == models.WebhookStatusCompleted {
		s.markEventCompleted(ev.EventID)
		return &ProcessResult{Duplicate: true}, nil
	}
	if !created {
		// Seen before but never completed: resume from where it stopped.
		log.Infof("resuming webhook event %s from step %s", ev.EventID, event.ProcessingStep)
	}

	email := strings.ToLower(strings.TrimSpace(ev.CustomerEmail))
	if email == "" {
		s.recordFailed(event.ID, ErrMissingEmail, StepCustomerUpsert)
		return nil, ErrMissingEmail
	}

	s.recordStep(event.ID, StepCustomerUpsert, map[string]interface{}{"customer_email": email})
	customer := &models.Customer{
		Email:            email,
		Name:             nameOrDefault(ev.CustomerName),
		Country:          countryOrDefault(ev.Country),
		StripeCustomerID: ev.StripeCustomerID,
	}
	if err := s.repo.UpsertCustomer(customer); err != nil {
		s.recordFailed(event.ID, err, StepCustomerUpsert)
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	s.recordStep(event.ID, StepPaymentCreate, nil)
	_, payment, err := s.repo.CreatePaymentIfNotExists(&models.Payment{
		CustomerID:      customer.ID,
		StripePaymentID: ev.PaymentIntentID,
		StripeSessionID: ev.SessionID,
		Amount:          ev.Amount,
		Currency:        ev.Currency,
		Status:          models.PaymentStatusPaid,
		ProductName:     s.cfg.ProductName,
		WebhookEventID:  &event.ID,
	})
	if err != nil {
		s.recordFailed(event.ID, err, StepPaymentCreate)
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	if payment.MagicLinkCreated && payment.EmailSent {
		// A different event already fulfilled this charge.
		s.recordCompleted(event.ID, StepCompleted)
		s.markEventCompleted(ev.EventID)
		return &ProcessResult{Duplicate: true, PaymentUUID: payment.UUID}, nil
	}

	actions, failedStep, err := s.fulfill(ctx, event.ID, customer, payment)
	if err != nil {
		s.recordFailed(event.ID, err, failedStep)
		return nil, err
	}

	s.recordCompleted(event.ID, StepCompleted)
	s.markEventCompleted(ev.EventID)
	return &ProcessResult{PaymentUUID: payment.UUID, Actions: actions}, nil
}

// Retry is the operator-driven recovery path. It locates the ledger entry,
// rebuilds the payment record from ledger data if it is missing (which
// requires the customer to already exist), runs only the sub-steps the flags
// show as incomplete and reports what it actually did.
func (s *Service) Retry(ctx context.Context, in RetryInput) (*RetryResult, error) {
	event, err := s.lookupEvent(in)
	if err != nil {
		return nil, err
	}

	actions := Actions{}
	payment, err := s.repo.GetPaymentByStripePaymentID(event.StripePaymentIntent)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load payment record: %w", err)
		}
		payment, err = s.recreatePayment(event)
		if err != nil {
			return nil, err
		}
		actions.PaymentRecreated = true
	}

	customer, err := s.repo.GetCustomerByID(payment.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load customer %d: %w", payment.CustomerID, err)
	}

	s.recordRetry(event)
	stepActions, failedStep, err := s.fulfill(ctx, event.ID, customer, payment)
	if err != nil {
		s.recordFailed(event.ID, err, failedStep)
		return nil, err
	}
	actions.MagicLinkCreated = stepActions.MagicLinkCreated
	actions.EmailSent = stepActions.EmailSent

	s.recordCompleted(event.ID, StepCompletedViaRetry)
	s.markEventCompleted(event.ProviderEventID)
	return &RetryResult{WebhookEventID: event.ID, PaymentUUID: payment.UUID, Actions: actions}, nil
}

// fulfill runs the flag-guarded sub-steps shared by both modes: issue the
// download credential and send the delivery email. It returns the step label
// of the failing step so the ledger records where processing stopped.
func (s *Service) fulfill(ctx context.Context, eventID uint, customer *models.Customer, payment *models.Payment) (Actions, string, error) {
	actions := Actions{}

	s.recordStep(eventID, StepMagicLink, nil)
	link, linkCreated, err := s.IssueMagicLink(ctx, customer.ID, payment.ID, s.cfg.PDFFileName)
	if err != nil {
		return actions, StepMagicLink, fmt.Errorf("issue magic link: %w", err)
	}
	actions.MagicLinkCreated = linkCreated
	if !payment.MagicLinkCreated {
		if err := s.repo.UpdatePayment(payment.ID, map[string]interface{}{"magic_link_created": true}); err != nil {
			return actions, StepMagicLink, fmt.Errorf("flag magic link created: %w", err)
		}
		payment.MagicLinkCreated = true
	}

	if !payment.EmailSent {
		s.recordStep(eventID, StepEmailSend, nil)
		html := mail.PurchaseEmailHTML(mail.PurchaseEmailData{
			CustomerName:   customer.Name,
			DownloadURL:    link.DownloadURL,
			WhatsAppNumber: s.cfg.WhatsAppNumber,
			MaxDownloads:   s.cfg.DownloadLimit,
		})
		messageID, err := s.mailer.Send(ctx, mail.Message{
			To:      customer.Email,
			Subject: mail.PurchaseEmailSubject,
			HTML:    html,
		})
		if err != nil {
			return actions, StepEmailSend, fmt.Errorf("send fulfillment email: %w", err)
		}
		now := time.Now()
		if err := s.repo.UpdatePayment(payment.ID, map[string]interface{}{
			"email_sent":    true,
			"email_sent_at": &now,
		}); err != nil {
			return actions, StepEmailSend, fmt.Errorf("flag email sent: %w", err)
		}
		payment.EmailSent = true
		actions.EmailSent = true
		log.Infof("fulfillment email sent to %s (message id %s)", customer.Email, messageID)
	}

	return actions, "", nil
}

func (s *Service) lookupEvent(in RetryInput) (*models.WebhookEvent, error) {
	switch {
	case in.WebhookEventID != 0:
		event, err := s.repo.GetWebhookEventByID(in.WebhookEventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrEventNotFound
			}
			return nil, err
		}
		return event, nil
	case in.PaymentIntentID != "":
		event, err := s.repo.GetWebhookEventByPaymentIntent(in.PaymentIntentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrEventNotFound
			}
			return nil, err
		}
		return event, nil
	default:
		return nil, ErrRetryInputRequired
	}
}

// recreatePayment rebuilds a missing payment record from the denormalized
// ledger data. Synthesizing a customer from nothing is out of scope, so the
// customer must already exist.
func (s *Service) recreatePayment(event *models.WebhookEvent) (*models.Payment, error) {
	email := strings.ToLower(strings.TrimSpace(event.CustomerEmail))
	if email == "" {
		return nil, ErrCustomerNotFound
	}
	customer, err := s.repo.GetCustomerByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("load customer by email: %w", err)
	}

	_, payment, err := s.repo.CreatePaymentIfNotExists(&models.Payment{
		CustomerID:      customer.ID,
		StripePaymentID: event.StripePaymentIntent,
		StripeSessionID: event.StripeSessionID,
		Amount:          event.Amount,
		Currency:        event.Currency,
		Status:          models.PaymentStatusPaid,
		ProductName:     s.cfg.ProductName,
		WebhookEventID:  &event.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("recreate payment record: %w", err)
	}
	return payment, nil
}

func nameOrDefault(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return "Cliente"
	}
	return n
}

func countryOrDefault(country string) string {
	c := strings.TrimSpace(country)
	if c == "" {
		return "Unknown"
	}
	return c
}
