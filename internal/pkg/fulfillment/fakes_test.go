package fulfillment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planetaketo/storefront/app/models"
	"github.com/planetaketo/storefront/internal/pkg/mail"
)

// memoryRepository mimics the database constraints the real repository relies
// on: unique provider_event_id, stripe_payment_id and payment_id, plus the
// conditional download counter update.
type memoryRepository struct {
	mu        sync.Mutex
	events    map[uint]*models.WebhookEvent
	customers map[uint]*models.Customer
	payments  map[uint]*models.Payment
	links     map[uint]*models.DownloadLink
	nextID    uint
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		events:    map[uint]*models.WebhookEvent{},
		customers: map[uint]*models.Customer{},
		payments:  map[uint]*models.Payment{},
		links:     map[uint]*models.DownloadLink{},
	}
}

func (r *memoryRepository) nextIdentity() uint {
	r.nextID++
	return r.nextID
}

func (r *memoryRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ProviderEventID == event.ProviderEventID {
			cp := *e
			return false, &cp, nil
		}
	}
	event.ID = r.nextIdentity()
	event.CreatedAt = time.Now()
	cp := *event
	r.events[event.ID] = &cp
	out := cp
	return true, &out, nil
}

func (r *memoryRepository) GetWebhookEventByID(id uint) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) GetWebhookEventByProviderEventID(providerEventID string) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ProviderEventID == providerEventID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) GetWebhookEventByPaymentIntent(paymentIntentID string) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.WebhookEvent
	for _, e := range r.events {
		if e.StripePaymentIntent != paymentIntentID {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memoryRepository) UpdateWebhookEvent(id uint, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			e.Status = v.(string)
		case "processing_step":
			e.ProcessingStep = v.(string)
		case "error_message":
			e.ErrorMessage = v.(string)
		case "error_stack":
			e.ErrorStack = v.(string)
		case "retry_count":
			e.RetryCount = v.(int)
		case "customer_email":
			e.CustomerEmail = v.(string)
		case "completed_at":
			e.CompletedAt = v.(*time.Time)
		case "last_retry_at":
			e.LastRetryAt = v.(*time.Time)
		}
	}
	return nil
}

func (r *memoryRepository) UpsertCustomer(customer *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.Email == customer.Email {
			c.Name = customer.Name
			c.Country = customer.Country
			c.StripeCustomerID = customer.StripeCustomerID
			*customer = *c
			return nil
		}
	}
	customer.ID = r.nextIdentity()
	cp := *customer
	r.customers[customer.ID] = &cp
	return nil
}

func (r *memoryRepository) GetCustomerByEmail(email string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) GetCustomerByID(id uint) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.customers[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) CreatePaymentIfNotExists(payment *models.Payment) (bool, *models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.StripePaymentID == payment.StripePaymentID {
			cp := *p
			return false, &cp, nil
		}
	}
	payment.ID = r.nextIdentity()
	if payment.UUID == "" {
		payment.UUID = uuid.New().String()
	}
	payment.CreatedAt = time.Now()
	cp := *payment
	r.payments[payment.ID] = &cp
	out := cp
	return true, &out, nil
}

func (r *memoryRepository) GetPaymentByStripePaymentID(stripePaymentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.StripePaymentID == stripePaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) UpdatePayment(id uint, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "magic_link_created":
			p.MagicLinkCreated = v.(bool)
		case "email_sent":
			p.EmailSent = v.(bool)
		case "email_sent_at":
			p.EmailSentAt = v.(*time.Time)
		}
	}
	return nil
}

func (r *memoryRepository) ListIncompletePayments(olderThan time.Time, limit int) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if (!p.MagicLinkCreated || !p.EmailSent) && p.CreatedAt.Before(olderThan) {
			out = append(out, *p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memoryRepository) CreateDownloadLinkIfNotExists(link *models.DownloadLink) (bool, *models.DownloadLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.PaymentID == link.PaymentID {
			cp := *l
			return false, &cp, nil
		}
	}
	link.ID = r.nextIdentity()
	cp := *link
	r.links[link.ID] = &cp
	out := cp
	return true, &out, nil
}

func (r *memoryRepository) GetDownloadLinkByPaymentID(paymentID uint) (*models.DownloadLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.PaymentID == paymentID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) GetDownloadLinkByToken(token string) (*models.DownloadLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) IncrementDownloadCount(token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Token == token && l.DownloadCount < l.MaxDownloads {
			l.DownloadCount++
			l.LastDownloadAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) DecrementDownloadCount(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[id]; ok && l.DownloadCount > 0 {
		l.DownloadCount--
	}
	return nil
}

// fakeMailer records sent messages and can be told to fail.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return uuid.New().String(), nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// fakeStore serves a fixed payload and can be told to fail.
type fakeStore struct {
	mu      sync.Mutex
	data    []byte
	fail    bool
	err     error
	fetches int
}

func (s *fakeStore) FetchProduct(_ context.Context, _ string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, "", s.err
	}
	s.fetches++
	return s.data, "application/pdf", nil
}

// fakeEventCache is an in-process stand-in for the redis fast path.
type fakeEventCache struct {
	mu        sync.Mutex
	completed map[string]bool
}

func newFakeEventCache() *fakeEventCache {
	return &fakeEventCache{completed: map[string]bool{}}
}

func (c *fakeEventCache) MarkCompleted(providerEventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[providerEventID] = true
}

func (c *fakeEventCache) IsCompleted(providerEventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[providerEventID]
}
