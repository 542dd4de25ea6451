package fulfillment

import (
	"time"

	"github.com/planetaketo/storefront/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the fulfillment service. All
// cross-request coordination happens here through unique constraints and
// conditional updates; the service itself holds no locks.
type Repository interface {
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	GetWebhookEventByID(id uint) (*models.WebhookEvent, error)
	GetWebhookEventByProviderEventID(providerEventID string) (*models.WebhookEvent, error)
	GetWebhookEventByPaymentIntent(paymentIntentID string) (*models.WebhookEvent, error)
	UpdateWebhookEvent(id uint, updates map[string]interface{}) error

	UpsertCustomer(customer *models.Customer) error
	GetCustomerByEmail(email string) (*models.Customer, error)
	GetCustomerByID(id uint) (*models.Customer, error)

	CreatePaymentIfNotExists(payment *models.Payment) (bool, *models.Payment, error)
	GetPaymentByStripePaymentID(stripePaymentID string) (*models.Payment, error)
	UpdatePayment(id uint, updates map[string]interface{}) error
	ListIncompletePayments(olderThan time.Time, limit int) ([]models.Payment, error)

	CreateDownloadLinkIfNotExists(link *models.DownloadLink) (bool, *models.DownloadLink, error)
	GetDownloadLinkByPaymentID(paymentID uint) (*models.DownloadLink, error)
	GetDownloadLinkByToken(token string) (*models.DownloadLink, error)
	IncrementDownloadCount(token string, now time.Time) (bool, error)
	DecrementDownloadCount(id uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a fulfillment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider_event_id = ?", event.ProviderEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetWebhookEventByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) GetWebhookEventByProviderEventID(providerEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.Where("provider_event_id = ?", providerEventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) GetWebhookEventByPaymentIntent(paymentIntentID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.Where("stripe_payment_intent = ?", paymentIntentID).
		Order("created_at DESC").First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) UpdateWebhookEvent(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) UpsertCustomer(customer *models.Customer) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"country",
			"stripe_customer_id",
			"updated_at",
		}),
	}).Create(customer).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("email = ?", customer.Email).First(customer).Error
}

func (r *gormRepository) GetCustomerByEmail(email string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("email = ?", email).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) GetCustomerByID(id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.First(&customer, id).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) CreatePaymentIfNotExists(payment *models.Payment) (bool, *models.Payment, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_payment_id"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Payment
	if err := r.db.Where("stripe_payment_id = ?", payment.StripePaymentID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetPaymentByStripePaymentID(stripePaymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("stripe_payment_id = ?", stripePaymentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) UpdatePayment(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListIncompletePayments(olderThan time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.
		Where("(magic_link_created = ? OR email_sent = ?) AND created_at < ?", false, false, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *gormRepository) CreateDownloadLinkIfNotExists(link *models.DownloadLink) (bool, *models.DownloadLink, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(link)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.DownloadLink
	if err := r.db.Where("payment_id = ?", link.PaymentID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetDownloadLinkByPaymentID(paymentID uint) (*models.DownloadLink, error) {
	var link models.DownloadLink
	if err := r.db.Where("payment_id = ?", paymentID).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *gormRepository) GetDownloadLinkByToken(token string) (*models.DownloadLink, error) {
	var link models.DownloadLink
	if err := r.db.Where("token = ?", token).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// IncrementDownloadCount performs the atomic compare-and-increment that
// guards against over-redemption. The WHERE clause carries the limit check so
// two concurrent redemptions of the last slot cannot both pass.
func (r *gormRepository) IncrementDownloadCount(token string, now time.Time) (bool, error) {
	tx := r.db.Model(&models.DownloadLink{}).
		Where("token = ? AND download_count < max_downloads", token).
		Updates(map[string]interface{}{
			"download_count":   gorm.Expr("download_count + 1"),
			"last_download_at": &now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) DecrementDownloadCount(id uint) error {
	return r.db.Model(&models.DownloadLink{}).
		Where("id = ? AND download_count > 0", id).
		Update("download_count", gorm.Expr("download_count - 1")).Error
}
