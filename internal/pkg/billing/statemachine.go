package billing

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/plancatalog"
	"github.com/google/uuid"
)

// Status flips allowed outside settlement. EXPIRED and SUSPENDED are set by
// the expiry sweep; settlement is the only way back to ACTIVE.
var transitions = map[string][]string{
	models.SubscriptionStatusTrial:     {models.SubscriptionStatusActive, models.SubscriptionStatusCancelled},
	models.SubscriptionStatusActive:    {models.SubscriptionStatusExpired, models.SubscriptionStatusSuspended, models.SubscriptionStatusCancelled},
	models.SubscriptionStatusExpired:   {models.SubscriptionStatusActive, models.SubscriptionStatusCancelled},
	models.SubscriptionStatusSuspended: {models.SubscriptionStatusActive, models.SubscriptionStatusCancelled},
	models.SubscriptionStatusCancelled: nil,
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status ends a subscription record.
func IsTerminal(status string) bool {
	return status == models.SubscriptionStatusCancelled
}

// Settle returns the subscription state after a successful payment for plan.
// Any non-terminal row is renewed in place and forced ACTIVE. A missing or
// CANCELLED row is replaced by a new record with a fresh id.
func Settle(existing *models.Subscription, plan plancatalog.PlanDefinition, clientProfileID string, now time.Time) *models.Subscription {
	sub := &models.Subscription{}
	if existing != nil && !IsTerminal(existing.Status) {
		*sub = *existing
	} else {
		sub.ID = uuid.New().String()
		sub.AutoRenew = true
	}

	end := plan.PeriodEnd(now)
	sub.ClientProfileID = clientProfileID
	sub.Plan = plan.ID
	sub.Amount = plan.PriceMinor
	sub.Currency = plan.Currency
	sub.StartDate = now
	sub.EndDate = end
	sub.LastPaymentDate = now
	sub.NextPaymentDate = end
	sub.Status = models.SubscriptionStatusActive
	sub.CancelledAt = nil
	return sub
}

// Cancel moves a subscription to CANCELLED.
func Cancel(existing *models.Subscription, now time.Time) (*models.Subscription, error) {
	if !CanTransition(existing.Status, models.SubscriptionStatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, existing.Status, models.SubscriptionStatusCancelled)
	}
	sub := *existing
	sub.Status = models.SubscriptionStatusCancelled
	sub.AutoRenew = false
	sub.CancelledAt = &now
	return &sub, nil
}
