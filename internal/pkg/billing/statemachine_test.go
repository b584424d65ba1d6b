package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/plancatalog"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.SubscriptionStatusTrial, models.SubscriptionStatusActive, true},
		{models.SubscriptionStatusActive, models.SubscriptionStatusSuspended, true},
		{models.SubscriptionStatusSuspended, models.SubscriptionStatusActive, true},
		{models.SubscriptionStatusExpired, models.SubscriptionStatusActive, true},
		{models.SubscriptionStatusActive, models.SubscriptionStatusTrial, false},
		{models.SubscriptionStatusCancelled, models.SubscriptionStatusActive, false},
		{models.SubscriptionStatusCancelled, models.SubscriptionStatusCancelled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSettle_NewSubscription(t *testing.T) {
	plan, _ := plancatalog.Default().Lookup(plancatalog.PlanPremium)
	now := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	sub := Settle(nil, plan, "C1", now)
	if sub.ID == "" {
		t.Fatalf("expected a generated subscription id")
	}
	if sub.Status != models.SubscriptionStatusActive || !sub.AutoRenew {
		t.Fatalf("unexpected status/autorenew: %s %v", sub.Status, sub.AutoRenew)
	}
	wantEnd := time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)
	if !sub.EndDate.Equal(wantEnd) || !sub.NextPaymentDate.Equal(wantEnd) {
		t.Fatalf("end = %s next = %s, want %s", sub.EndDate, sub.NextPaymentDate, wantEnd)
	}
	if sub.Amount != plan.PriceMinor || sub.Currency != plan.Currency || sub.Plan != plancatalog.PlanPremium {
		t.Fatalf("unexpected plan fields: %+v", sub)
	}
}

func TestSettle_RenewsSuspendedInPlace(t *testing.T) {
	plan, _ := plancatalog.Default().Lookup(plancatalog.PlanBasic)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	existing := &models.Subscription{
		ID:              "sub-1",
		ClientProfileID: "C1",
		Plan:            plancatalog.PlanPremium,
		Status:          models.SubscriptionStatusSuspended,
		AutoRenew:       false,
	}

	sub := Settle(existing, plan, "C1", now)
	if sub.ID != "sub-1" {
		t.Fatalf("expected id to be kept, got %s", sub.ID)
	}
	if sub.Status != models.SubscriptionStatusActive || sub.Plan != plancatalog.PlanBasic {
		t.Fatalf("unexpected state: %s %s", sub.Status, sub.Plan)
	}
	if sub.AutoRenew {
		t.Fatalf("expected auto renew preference to be kept")
	}
	if existing.Status != models.SubscriptionStatusSuspended {
		t.Fatalf("input must not be mutated")
	}
}

func TestSettle_ReplacesCancelled(t *testing.T) {
	plan, _ := plancatalog.Default().Lookup(plancatalog.PlanPremiumAnnual)
	now := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	cancelledAt := now.Add(-time.Hour)
	existing := &models.Subscription{ID: "old", Status: models.SubscriptionStatusCancelled, CancelledAt: &cancelledAt}

	sub := Settle(existing, plan, "C1", now)
	if sub.ID == "old" || sub.ID == "" {
		t.Fatalf("expected a fresh record id, got %q", sub.ID)
	}
	if sub.CancelledAt != nil {
		t.Fatalf("expected cancelled_at to be cleared")
	}
	if want := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC); !sub.EndDate.Equal(want) {
		t.Fatalf("end = %s, want %s", sub.EndDate, want)
	}
}

func TestCancel(t *testing.T) {
	now := time.Now().UTC()
	sub, err := Cancel(&models.Subscription{ID: "s", Status: models.SubscriptionStatusActive, AutoRenew: true}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != models.SubscriptionStatusCancelled || sub.AutoRenew || sub.CancelledAt == nil {
		t.Fatalf("unexpected cancelled state: %+v", sub)
	}

	if _, err := Cancel(sub, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
