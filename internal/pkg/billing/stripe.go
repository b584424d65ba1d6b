package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

const (
	StripePaymentIntentSucceeded = "payment_intent.succeeded"
	StripePaymentIntentFailed    = "payment_intent.payment_failed"
	StripePaymentIntentCanceled  = "payment_intent.canceled"
	StripeCheckoutCompleted      = "checkout.session.completed"
	StripeCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	StripeCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	StripeSubscriptionCreated    = "customer.subscription.created"
	StripeSubscriptionDeleted    = "customer.subscription.deleted"
)

// StripeAdapter handles Stripe PaymentIntent, Checkout and Subscription events.
type StripeAdapter struct {
	WebhookSecret string
	Tolerance     time.Duration
}

func NewStripeAdapterFromEnv() *StripeAdapter {
	return &StripeAdapter{
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		Tolerance:     env.GetEnvDuration("STRIPE_WEBHOOK_TOLERANCE", webhook.DefaultTolerance),
	}
}

func (a *StripeAdapter) Provider() string { return models.ProviderStripe }

func (a *StripeAdapter) Verify(_ context.Context, payload []byte, headers http.Header) error {
	if a.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is not configured")
	}
	sig := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sig == "" {
		return fmt.Errorf("%w: missing Stripe-Signature", ErrInvalidSignature)
	}
	tolerance := a.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sig, a.WebhookSecret, tolerance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// stripeRef decodes fields Stripe sends either as an id or as an expanded object.
type stripeRef string

func (r *stripeRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = stripeRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = stripeRef(obj.ID)
	return nil
}

type stripeObject struct {
	ID            string    `json:"id"`
	Object        string    `json:"object"`
	Customer      stripeRef `json:"customer"`
	PaymentIntent stripeRef `json:"payment_intent"`
	Subscription  stripeRef `json:"subscription"`
	PaymentStatus string    `json:"payment_status"`
}

// checkoutPaid reports whether a completed Checkout Session has captured funds.
// Delayed methods complete the session as "unpaid" and settle later through
// the async_payment events.
func checkoutPaid(paymentStatus string) bool {
	switch stripe.CheckoutSessionPaymentStatus(paymentStatus) {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return true
	}
	return false
}

func (a *StripeAdapter) Normalize(payload []byte, receivedAt time.Time) (PaymentEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return PaymentEvent{}, malformed(models.ProviderStripe, "", err)
	}
	eventType := strings.TrimSpace(string(event.Type))
	if eventType == "" {
		return PaymentEvent{}, malformed(models.ProviderStripe, "", errors.New("missing type"))
	}

	ev := PaymentEvent{
		Provider:   models.ProviderStripe,
		EventType:  eventType,
		EventID:    strings.TrimSpace(event.ID),
		RawPayload: payload,
		ReceivedAt: receivedAt,
	}

	switch eventType {
	case StripePaymentIntentSucceeded, StripeCheckoutCompleted, StripeCheckoutAsyncSucceeded:
		ev.Kind = EventPaymentCompleted
	case StripePaymentIntentFailed, StripePaymentIntentCanceled, StripeCheckoutAsyncFailed:
		ev.Kind = EventPaymentFailed
	case StripeSubscriptionCreated:
		ev.Kind = EventSubscriptionActivated
	case StripeSubscriptionDeleted:
		ev.Kind = EventSubscriptionCancelled
	default:
		ev.Kind = EventUnrecognized
		return ev, nil
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return PaymentEvent{}, missingCorrelation(models.ProviderStripe, eventType)
	}
	var obj stripeObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return PaymentEvent{}, malformed(models.ProviderStripe, eventType, err)
	}
	ev.ProviderCorrelationID = strings.TrimSpace(obj.ID)
	if ev.ProviderCorrelationID == "" {
		return PaymentEvent{}, missingCorrelation(models.ProviderStripe, eventType)
	}

	fields := &models.StripePaymentFields{
		CustomerID:     string(obj.Customer),
		SubscriptionID: string(obj.Subscription),
	}
	switch eventType {
	case StripeCheckoutCompleted, StripeCheckoutAsyncSucceeded, StripeCheckoutAsyncFailed:
		fields.CheckoutSessionID = obj.ID
		fields.PaymentIntentID = string(obj.PaymentIntent)
	case StripeSubscriptionCreated, StripeSubscriptionDeleted:
		fields.SubscriptionID = obj.ID
	default:
		fields.PaymentIntentID = obj.ID
	}
	ev.Details = models.PaymentMetadata{Stripe: fields}
	if eventType == StripeCheckoutCompleted && !checkoutPaid(obj.PaymentStatus) {
		ev.Kind = EventUnrecognized
	}
	return ev, nil
}
