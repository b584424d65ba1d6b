package notification

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notification not found")

// Repository persists notifications and looks up recipients.
type Repository interface {
	Create(ctx context.Context, n *models.Notification) error
	Get(ctx context.Context, id string) (*models.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id, errMsg string, final bool) error
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Notification, error)
	Touch(ctx context.Context, id string) error
	RecipientEmail(ctx context.Context, clientProfileID string) (string, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *gormRepository) Get(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *gormRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.NotificationStatusSent,
			"sent_at":    &at,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
		}).Error
}

func (r *gormRepository) MarkAttemptFailed(ctx context.Context, id, errMsg string, final bool) error {
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": errMsg,
	}
	if final {
		updates["status"] = models.NotificationStatusFailed
	}
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.NotificationStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) Touch(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Update("updated_at", time.Now()).Error
}

func (r *gormRepository) RecipientEmail(ctx context.Context, clientProfileID string) (string, error) {
	var profile models.ClientProfile
	err := r.db.WithContext(ctx).Select("id", "billing_email").Where("id = ?", clientProfileID).First(&profile).Error
	if err != nil {
		return "", err
	}
	return profile.BillingEmail, nil
}
