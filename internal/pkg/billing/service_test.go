package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
)

type fakeRepo struct {
	events   map[string]*models.BillingWebhookEvent
	nextID   uint
	reopened []uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{events: map[string]*models.BillingWebhookEvent{}}
}

func (r *fakeRepo) byID(id uint) *models.BillingWebhookEvent {
	for _, e := range r.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	r.nextID++
	event.ID = r.nextID
	cp := *event
	r.events[key] = &cp
	return true, event, nil
}

func (r *fakeRepo) ReopenWebhookEvent(_ context.Context, id uint, signatureValid bool) error {
	e := r.byID(id)
	if e == nil {
		return errors.New("not found")
	}
	r.reopened = append(r.reopened, id)
	e.Attempts++
	e.ProcessedAt = nil
	e.Retryable = false
	e.SignatureValid = signatureValid
	return nil
}

func (r *fakeRepo) MarkWebhookProcessed(_ context.Context, id uint, outcome, processingError string, retryable bool) error {
	e := r.byID(id)
	if e == nil {
		return errors.New("not found")
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.Outcome = outcome
	e.ProcessingError = processingError
	e.Retryable = retryable
	return nil
}

func (r *fakeRepo) SetWebhookArchiveKey(_ context.Context, id uint, key string) error {
	e := r.byID(id)
	if e == nil {
		return errors.New("not found")
	}
	e.ArchiveKey = key
	return nil
}

func (r *fakeRepo) GetWebhookEvent(_ context.Context, id uint) (*models.BillingWebhookEvent, error) {
	e := r.byID(id)
	if e == nil {
		return nil, errors.New("not found")
	}
	return e, nil
}

func TestRecordWebhookEvent_Dedupe(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()
	in := WebhookEventInput{Provider: " PayPal ", ProviderEventID: "WH-1", EventType: "PAYMENT.CAPTURE.COMPLETED", PayloadJSON: "{}", SignatureValid: true}

	first, dup, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil || dup {
		t.Fatalf("first delivery: dup=%v err=%v", dup, err)
	}
	if first.Provider != models.ProviderPayPal {
		t.Fatalf("expected provider to be normalized, got %q", first.Provider)
	}

	// not processed yet: a concurrent retry is reopened, not deduped
	if _, dup, _ := svc.RecordWebhookEvent(ctx, in); dup {
		t.Fatalf("unprocessed delivery must not be treated as duplicate")
	}

	if err := svc.MarkWebhookProcessed(ctx, first.ID, string(OutcomeSettled), nil); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if _, dup, _ := svc.RecordWebhookEvent(ctx, in); !dup {
		t.Fatalf("expected settled delivery to be a duplicate")
	}
}

func TestRecordWebhookEvent_RetryableFailureIsReopened(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()
	in := WebhookEventInput{Provider: "stripe", ProviderEventID: "evt_1", EventType: "payment_intent.succeeded", PayloadJSON: "{}"}

	stored, _, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.MarkWebhookProcessed(ctx, stored.ID, "", infraErr("record store", errors.New("deadlock"))); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !repo.byID(stored.ID).Retryable {
		t.Fatalf("expected retryable flag")
	}

	_, dup, err := svc.RecordWebhookEvent(ctx, in)
	if err != nil || dup {
		t.Fatalf("retry: dup=%v err=%v", dup, err)
	}
	if len(repo.reopened) != 1 || repo.byID(stored.ID).Attempts != 2 {
		t.Fatalf("expected reopen with attempts=2, got %v / %d", repo.reopened, repo.byID(stored.ID).Attempts)
	}
}

func TestRecordWebhookEvent_HashFallback(t *testing.T) {
	svc := NewService(newFakeRepo())
	stored, _, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{Provider: "stripe", PayloadJSON: `{"a":1}`})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !strings.HasPrefix(stored.ProviderEventID, "hash:") {
		t.Fatalf("expected hash fallback id, got %q", stored.ProviderEventID)
	}

	if _, _, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{}); err == nil {
		t.Fatalf("expected error for missing provider")
	}
}
