package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the webhook delivery log.
type Repository interface {
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	ReopenWebhookEvent(ctx context.Context, id uint, signatureValid bool) error
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string, retryable bool) error
	SetWebhookArchiveKey(ctx context.Context, id uint, key string) error
	GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook log repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) ReopenWebhookEvent(ctx context.Context, id uint, signatureValid bool) error {
	updates := map[string]interface{}{
		"attempts":         gorm.Expr("attempts + 1"),
		"processed_at":     nil,
		"processing_error": "",
		"retryable":        false,
		"signature_valid":  signatureValid,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string, retryable bool) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": processingError,
		"retryable":        retryable,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) SetWebhookArchiveKey(ctx context.Context, id uint, key string) error {
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Update("archive_key", key).Error
}

func (r *gormRepository) GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error) {
	var event models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// gormStore implements Store on MySQL row locks.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by db.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx StoreTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStoreTx{db: tx})
	})
}

type gormStoreTx struct {
	db *gorm.DB
}

func (t *gormStoreTx) LockPayment(ctx context.Context, provider, correlationID string) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_correlation_id = ?", provider, correlationID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *gormStoreTx) LockClientProfile(ctx context.Context, clientProfileID string) (*models.ClientProfile, error) {
	var profile models.ClientProfile
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", clientProfileID).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (t *gormStoreTx) GetSubscription(ctx context.Context, clientProfileID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := t.db.WithContext(ctx).Where("client_profile_id = ?", clientProfileID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (t *gormStoreTx) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "client_profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"id",
			"plan",
			"amount",
			"currency",
			"start_date",
			"end_date",
			"last_payment_date",
			"next_payment_date",
			"status",
			"auto_renew",
			"cancelled_at",
			"updated_at",
		}),
	}).Create(sub).Error
}

func (t *gormStoreTx) TransitionPayment(ctx context.Context, p *models.PaymentRecord, from ...string) (bool, error) {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return false, err
	}
	res := t.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND status IN ?", p.ID, from).
		Updates(map[string]interface{}{
			"status":          p.Status,
			"payment_date":    p.PaymentDate,
			"subscription_id": p.SubscriptionID,
			"metadata":        string(metadata),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *gormStoreTx) UpdateClientProfileMirror(ctx context.Context, profile *models.ClientProfile) error {
	return t.db.WithContext(ctx).Model(&models.ClientProfile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]interface{}{
			"subscription_status": profile.SubscriptionStatus,
			"subscription_start":  profile.SubscriptionStart,
			"subscription_end":    profile.SubscriptionEnd,
		}).Error
}
