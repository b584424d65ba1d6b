package billing

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/plancatalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestGormStore_LockPayment(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewGormStore(db)

	rows := sqlmock.NewRows([]string{"id", "client_profile_id", "plan_id", "provider", "provider_correlation_id", "amount", "currency", "status", "metadata"}).
		AddRow("pay-1", "C1", "PREMIUM", "paypal", "ORD-1", 2900, "EUR", "PENDING", `{"paypal":{"order_id":"ORD-1"}}`)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `payment_records` WHERE provider = \\? AND provider_correlation_id = \\?.* FOR UPDATE").
		WillReturnRows(rows)
	mock.ExpectCommit()

	var got *models.PaymentRecord
	err := store.Transaction(context.Background(), func(tx StoreTx) error {
		var err error
		got, err = tx.LockPayment(context.Background(), "paypal", "ORD-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", got.ID)
	assert.Equal(t, models.PaymentStatusPending, got.Status)
	require.NotNil(t, got.Metadata.PayPal)
	assert.Equal(t, "ORD-1", got.Metadata.PayPal.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LockPaymentNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `payment_records`").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := store.Transaction(context.Background(), func(tx StoreTx) error {
		_, err := tx.LockPayment(context.Background(), "paypal", "missing")
		return err
	})
	assert.True(t, errors.Is(err, ErrPaymentNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_TransitionPaymentLostRace(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `payment_records` SET .* WHERE id = \\? AND status IN \\(\\?,\\?\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var moved bool
	err := store.Transaction(context.Background(), func(tx StoreTx) error {
		var err error
		moved, err = tx.TransitionPayment(context.Background(), &models.PaymentRecord{
			ID:     "pay-1",
			Status: models.PaymentStatusCompleted,
		}, models.PaymentStatusPending, models.PaymentStatusFailed)
		return err
	})
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateWebhookEventIfNotExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `billing_webhook_events`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT \\* FROM `billing_webhook_events` WHERE provider = \\? AND provider_event_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider", "provider_event_id", "event_type", "retryable"}).
			AddRow(42, "stripe", "evt_1", "payment_intent.succeeded", false))

	created, stored, err := repo.CreateWebhookEventIfNotExists(context.Background(), &models.BillingWebhookEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       "payment_intent.succeeded",
		PayloadJSON:     "{}",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint(42), stored.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_MarkWebhookProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `billing_webhook_events` SET .*`outcome`=\\?.* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkWebhookProcessed(context.Background(), 42, "settled", "", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// timeArg matches a bound time by instant rather than by location.
type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(time.Time(a))
}

const upsertSubscriptionSQL = "INSERT INTO `subscriptions` .* ON DUPLICATE KEY UPDATE `id`=.*`status`=.*`auto_renew`=.*`cancelled_at`="

func saveSubscription(t *testing.T, db *gorm.DB, sub *models.Subscription) {
	t.Helper()
	err := NewGormStore(db).Transaction(context.Background(), func(tx StoreTx) error {
		return tx.SaveSubscription(context.Background(), sub)
	})
	require.NoError(t, err)
}

func TestGormStore_SaveSubscriptionCancelled(t *testing.T) {
	db, mock := newMockDB(t)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	now := start.AddDate(0, 0, 10)

	cancelled, err := Cancel(&models.Subscription{
		ID:              "sub-1",
		ClientProfileID: "C1",
		Plan:            plancatalog.PlanPremium,
		Amount:          2900,
		Currency:        "EUR",
		StartDate:       start,
		EndDate:         end,
		LastPaymentDate: start,
		NextPaymentDate: end,
		Status:          models.SubscriptionStatusActive,
		AutoRenew:       true,
	}, now)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(upsertSubscriptionSQL).
		WithArgs("sub-1", "C1", plancatalog.PlanPremium, int64(2900), "EUR",
			timeArg(start), timeArg(end), timeArg(start), timeArg(end),
			models.SubscriptionStatusCancelled, false,
			sqlmock.AnyArg(), sqlmock.AnyArg(), timeArg(now)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	saveSubscription(t, db, cancelled)
	assert.False(t, cancelled.AutoRenew)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SaveSubscriptionSettled(t *testing.T) {
	plan, err := plancatalog.Default().Lookup(plancatalog.PlanPremium)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := plan.PeriodEnd(now)
	cancelledAt := now.AddDate(0, 0, -3)

	tests := []struct {
		name      string
		existing  *models.Subscription
		newID     bool
		autoRenew bool
	}{
		{
			name:      "replaces cancelled row under a new id",
			existing:  &models.Subscription{ID: "sub-old", ClientProfileID: "C1", Status: models.SubscriptionStatusCancelled, CancelledAt: &cancelledAt},
			newID:     true,
			autoRenew: true,
		},
		{
			name:      "renewal keeps auto renew opt-out",
			existing:  &models.Subscription{ID: "sub-old", ClientProfileID: "C1", Status: models.SubscriptionStatusSuspended, AutoRenew: false},
			autoRenew: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			sub := Settle(tt.existing, plan, "C1", now)
			assert.Equal(t, tt.newID, sub.ID != "sub-old")

			mock.ExpectBegin()
			mock.ExpectExec(upsertSubscriptionSQL).
				WithArgs(sub.ID, "C1", plan.ID, plan.PriceMinor, plan.Currency,
					timeArg(now), timeArg(end), timeArg(now), timeArg(end),
					models.SubscriptionStatusActive, tt.autoRenew,
					sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 2))
			mock.ExpectCommit()

			saveSubscription(t, db, sub)
			assert.Equal(t, tt.autoRenew, sub.AutoRenew)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_UpdateClientProfileMirror(t *testing.T) {
	db, mock := newMockDB(t)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	profile := &models.ClientProfile{ID: "C1"}
	profile.MirrorSubscription(&models.Subscription{Status: models.SubscriptionStatusActive, StartDate: start, EndDate: end})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `client_profiles` SET `subscription_end`=\\?,`subscription_start`=\\?,`subscription_status`=\\?,`updated_at`=\\? WHERE id = \\?").
		WithArgs(timeArg(end), timeArg(start), models.SubscriptionStatusActive, sqlmock.AnyArg(), "C1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewGormStore(db).Transaction(context.Background(), func(tx StoreTx) error {
		return tx.UpdateClientProfileMirror(context.Background(), profile)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
