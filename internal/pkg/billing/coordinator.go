package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics"
	"github.com/ManuelReschke/PayFox/internal/pkg/plancatalog"
	"github.com/gofiber/fiber/v2/log"
)

const (
	defaultStoreTimeout  = 10 * time.Second
	defaultNotifyTimeout = 2 * time.Second
)

// errPaymentMoved aborts a settlement whose status CAS lost against a
// concurrent writer.
var errPaymentMoved = errors.New("payment status changed concurrently")

// PlanLookup resolves plan ids.
type PlanLookup interface {
	Lookup(planID string) (plancatalog.PlanDefinition, error)
}

type CoordinatorConfig struct {
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
	// SubscriptionSourceOfTruth lists providers whose native subscription
	// events settle and cancel tenant subscriptions.
	SubscriptionSourceOfTruth map[string]bool
}

func LoadCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		StoreTimeout:  env.GetEnvDuration("BILLING_STORE_TIMEOUT", defaultStoreTimeout),
		NotifyTimeout: env.GetEnvDuration("BILLING_NOTIFY_TIMEOUT", defaultNotifyTimeout),
		SubscriptionSourceOfTruth: map[string]bool{
			models.ProviderPayPal: env.GetEnvBool("BILLING_PAYPAL_SUBSCRIPTION_SOURCE_OF_TRUTH", false),
			models.ProviderStripe: env.GetEnvBool("BILLING_STRIPE_SUBSCRIPTION_SOURCE_OF_TRUTH", false),
		},
	}
}

// Coordinator reconciles normalized payment events against the record store.
type Coordinator struct {
	store      Store
	plans      PlanLookup
	dispatcher Dispatcher
	cfg        CoordinatorConfig
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewCoordinator(store Store, plans PlanLookup, dispatcher Dispatcher, cfg CoordinatorConfig, m *metrics.Metrics) *Coordinator {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if m == nil {
		m = metrics.Get()
	}
	return &Coordinator{
		store:      store,
		plans:      plans,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    m,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Reconcile applies one event. The returned error is non-nil only for
// infrastructure failures; every other situation is described by Result.
func (c *Coordinator) Reconcile(ctx context.Context, ev PaymentEvent) (Result, error) {
	started := time.Now()
	res, err := c.reconcile(ctx, ev)

	provider := ev.Provider
	if provider == "" {
		provider = "unknown"
	}
	c.metrics.ReconcileDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
	if err != nil {
		c.metrics.ReconcileOutcomes.WithLabelValues(provider, "infrastructure_failure").Inc()
		log.Errorf("[Billing] reconcile %s %s (%s) failed: %v", provider, ev.EventType, ev.ProviderCorrelationID, err)
		return res, err
	}
	c.metrics.ReconcileOutcomes.WithLabelValues(provider, string(res.Outcome)).Inc()

	switch res.Outcome {
	case OutcomeUnknownPlan, OutcomeUnknownTenant:
		c.metrics.BillingAnomalies.WithLabelValues(provider, string(res.Outcome)).Inc()
		log.Errorf("[Billing] ALERT %s: payment=%s provider=%s correlation=%s: %s",
			res.Outcome, res.PaymentID, provider, ev.ProviderCorrelationID, res.Detail)
	case OutcomeOrphaned:
		log.Warnf("[Billing] orphaned %s event %s for correlation %s", provider, ev.EventType, ev.ProviderCorrelationID)
	case OutcomeMalformedEvent:
		log.Warnf("[Billing] malformed %s event %s: %s", provider, ev.EventType, res.Detail)
	default:
		log.Infof("[Billing] %s %s (%s) -> %s", provider, ev.EventType, ev.ProviderCorrelationID, res.Outcome)
	}
	return res, nil
}

func (c *Coordinator) reconcile(ctx context.Context, ev PaymentEvent) (Result, error) {
	if err := ev.Validate(); err != nil {
		return Result{Outcome: OutcomeMalformedEvent, Detail: err.Error()}, nil
	}

	switch ev.Kind {
	case EventPaymentCompleted:
		return c.settle(ctx, ev)
	case EventPaymentFailed:
		return c.fail(ctx, ev)
	case EventSubscriptionActivated:
		if !c.cfg.SubscriptionSourceOfTruth[ev.Provider] {
			return Result{Outcome: OutcomeNoOp, Detail: "subscription events from " + ev.Provider + " are informational"}, nil
		}
		return c.settle(ctx, ev)
	case EventSubscriptionCancelled:
		if !c.cfg.SubscriptionSourceOfTruth[ev.Provider] {
			return Result{Outcome: OutcomeNoOp, Detail: "subscription events from " + ev.Provider + " are informational"}, nil
		}
		return c.cancel(ctx, ev)
	default:
		return Result{Outcome: OutcomeNoOp, Detail: "unrecognized event type " + ev.EventType}, nil
	}
}

// settle marks the payment completed and activates the tenant's subscription
// in one transaction. Lock order is payment row, then client profile row.
func (c *Coordinator) settle(ctx context.Context, ev PaymentEvent) (Result, error) {
	now := c.now().UTC()
	var (
		res    Result
		notice *models.Notification
	)

	err := c.inTransaction(ctx, func(sctx context.Context, tx StoreTx) error {
		res, notice = Result{}, nil

		payment, err := tx.LockPayment(sctx, ev.Provider, ev.ProviderCorrelationID)
		if errors.Is(err, ErrPaymentNotFound) {
			res.Outcome = OutcomeOrphaned
			return nil
		}
		if err != nil {
			return err
		}
		res.PaymentID = payment.ID
		res.ClientProfileID = payment.ResolvedClientProfileID()

		if payment.Status == models.PaymentStatusCompleted {
			res.Outcome = OutcomeAlreadyProcessed
			if payment.SubscriptionID != nil {
				res.SubscriptionID = *payment.SubscriptionID
			}
			return nil
		}

		plan, err := c.plans.Lookup(payment.ResolvedPlanID())
		if err != nil {
			if errors.Is(err, plancatalog.ErrPlanNotFound) {
				res.Outcome = OutcomeUnknownPlan
				res.Detail = err.Error()
				return nil
			}
			return err
		}

		profile, err := tx.LockClientProfile(sctx, res.ClientProfileID)
		if errors.Is(err, ErrClientProfileNotFound) {
			res.Outcome = OutcomeUnknownTenant
			res.Detail = fmt.Sprintf("client profile %q does not exist", res.ClientProfileID)
			return nil
		}
		if err != nil {
			return err
		}

		existing, err := tx.GetSubscription(sctx, profile.ID)
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return err
		}
		sub := Settle(existing, plan, profile.ID, now)
		if err := tx.SaveSubscription(sctx, sub); err != nil {
			return err
		}

		payment.Status = models.PaymentStatusCompleted
		payment.PaymentDate = &now
		payment.SubscriptionID = &sub.ID
		payment.Metadata.Merge(ev.MetadataPatch())
		moved, err := tx.TransitionPayment(sctx, payment, models.PaymentStatusPending, models.PaymentStatusFailed)
		if err != nil {
			return err
		}
		if !moved {
			return errPaymentMoved
		}

		profile.MirrorSubscription(sub)
		if err := tx.UpdateClientProfileMirror(sctx, profile); err != nil {
			return err
		}

		res.Outcome = OutcomeSettled
		res.SubscriptionID = sub.ID
		notice = paymentReceivedNotice(profile, plan, payment, sub)
		return nil
	})
	if errors.Is(err, errPaymentMoved) {
		return Result{Outcome: OutcomeAlreadyProcessed, PaymentID: res.PaymentID, ClientProfileID: res.ClientProfileID}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if notice != nil {
		c.notify(ctx, notice)
	}
	return res, nil
}

// fail marks a pending payment FAILED. Completed payments are never regressed
// and the subscription is left untouched.
func (c *Coordinator) fail(ctx context.Context, ev PaymentEvent) (Result, error) {
	var (
		res    Result
		notice *models.Notification
	)

	err := c.inTransaction(ctx, func(sctx context.Context, tx StoreTx) error {
		res, notice = Result{}, nil

		payment, err := tx.LockPayment(sctx, ev.Provider, ev.ProviderCorrelationID)
		if errors.Is(err, ErrPaymentNotFound) {
			res.Outcome = OutcomeOrphaned
			return nil
		}
		if err != nil {
			return err
		}
		res.PaymentID = payment.ID
		res.ClientProfileID = payment.ResolvedClientProfileID()

		if payment.Status != models.PaymentStatusPending {
			res.Outcome = OutcomeAlreadyProcessed
			return nil
		}

		payment.Status = models.PaymentStatusFailed
		payment.Metadata.Merge(ev.MetadataPatch())
		moved, err := tx.TransitionPayment(sctx, payment, models.PaymentStatusPending)
		if err != nil {
			return err
		}
		if !moved {
			return errPaymentMoved
		}
		res.Outcome = OutcomeFailed

		profile, err := tx.LockClientProfile(sctx, res.ClientProfileID)
		if err == nil {
			notice = paymentFailedNotice(profile, payment)
		} else if !errors.Is(err, ErrClientProfileNotFound) {
			return err
		}
		return nil
	})
	if errors.Is(err, errPaymentMoved) {
		return Result{Outcome: OutcomeAlreadyProcessed, PaymentID: res.PaymentID, ClientProfileID: res.ClientProfileID}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if notice != nil {
		c.notify(ctx, notice)
	}
	return res, nil
}

// cancel applies a provider-native cancellation to the tenant owning the
// payment registered under the provider subscription id.
func (c *Coordinator) cancel(ctx context.Context, ev PaymentEvent) (Result, error) {
	now := c.now().UTC()
	var (
		res    Result
		notice *models.Notification
	)

	err := c.inTransaction(ctx, func(sctx context.Context, tx StoreTx) error {
		res, notice = Result{}, nil

		payment, err := tx.LockPayment(sctx, ev.Provider, ev.ProviderCorrelationID)
		if errors.Is(err, ErrPaymentNotFound) {
			res.Outcome = OutcomeOrphaned
			return nil
		}
		if err != nil {
			return err
		}
		res.PaymentID = payment.ID
		res.ClientProfileID = payment.ResolvedClientProfileID()

		profile, err := tx.LockClientProfile(sctx, res.ClientProfileID)
		if errors.Is(err, ErrClientProfileNotFound) {
			res.Outcome = OutcomeUnknownTenant
			res.Detail = fmt.Sprintf("client profile %q does not exist", res.ClientProfileID)
			return nil
		}
		if err != nil {
			return err
		}

		existing, err := tx.GetSubscription(sctx, profile.ID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			res.Outcome = OutcomeNoOp
			res.Detail = "tenant has no subscription to cancel"
			return nil
		}
		if err != nil {
			return err
		}
		res.SubscriptionID = existing.ID
		if IsTerminal(existing.Status) {
			res.Outcome = OutcomeAlreadyProcessed
			return nil
		}

		sub, err := Cancel(existing, now)
		if err != nil {
			return err
		}
		if err := tx.SaveSubscription(sctx, sub); err != nil {
			return err
		}
		profile.MirrorSubscription(sub)
		if err := tx.UpdateClientProfileMirror(sctx, profile); err != nil {
			return err
		}

		res.Outcome = OutcomeCancelled
		notice = subscriptionCancelledNotice(profile, sub)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if notice != nil {
		c.notify(ctx, notice)
	}
	return res, nil
}

// inTransaction bounds the store work by StoreTimeout. Store and timeout
// failures come back as InfrastructureError.
func (c *Coordinator) inTransaction(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	sctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	err := c.store.Transaction(sctx, func(tx StoreTx) error {
		return fn(sctx, tx)
	})
	if err == nil || errors.Is(err, errPaymentMoved) {
		return err
	}
	return infraErr("record store", err)
}

// notify hands n to the dispatcher. Failures are logged and counted only;
// the reconciliation has already committed.
func (c *Coordinator) notify(ctx context.Context, n *models.Notification) {
	if c.dispatcher == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.NotifyTimeout)
	defer cancel()

	if err := c.dispatcher.Enqueue(nctx, n); err != nil {
		c.metrics.NotificationEnqueueFailures.WithLabelValues(n.Type).Inc()
		log.Errorf("[Billing] failed to enqueue %s notification for client profile %s: %v", n.Type, n.ClientProfileID, err)
	}
}
