package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

// Service keeps the webhook delivery log.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// RecordWebhookEvent persists a delivery idempotently. duplicate is true when
// an earlier attempt for the same provider event already reached a final
// outcome; a delivery whose earlier attempt failed retryably is reopened.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (*models.BillingWebhookEvent, bool, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return nil, false, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
		Attempts:        1,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, event)
	if err != nil {
		return nil, false, err
	}
	if created {
		return stored, false, nil
	}
	if stored.Settled() {
		return stored, true, nil
	}
	if err := s.repo.ReopenWebhookEvent(ctx, stored.ID, in.SignatureValid); err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// MarkWebhookProcessed stores the final outcome of one delivery attempt.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome string, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, outcome, errMsg, IsRetryable(processingErr))
}
