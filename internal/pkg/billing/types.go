package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
)

// EventKind is the provider-neutral classification of a webhook event.
type EventKind string

const (
	EventPaymentCompleted      EventKind = "payment_completed"
	EventPaymentFailed         EventKind = "payment_failed"
	EventSubscriptionActivated EventKind = "subscription_activated"
	EventSubscriptionCancelled EventKind = "subscription_cancelled"
	EventUnrecognized          EventKind = "unrecognized"
)

// PaymentEvent is the normalized form of one provider webhook delivery.
type PaymentEvent struct {
	Provider              string
	Kind                  EventKind
	EventType             string
	EventID               string
	ProviderCorrelationID string
	RawPayload            []byte
	ReceivedAt            time.Time
	// Details carries the provider ids found in the payload. Only the section
	// matching Provider is set.
	Details models.PaymentMetadata
}

// Validate checks the shape the coordinator relies on.
func (e PaymentEvent) Validate() error {
	switch e.Provider {
	case models.ProviderPayPal, models.ProviderStripe:
	default:
		return fmt.Errorf("unknown provider %q", e.Provider)
	}
	if e.Kind == EventUnrecognized {
		return nil
	}
	switch e.Kind {
	case EventPaymentCompleted, EventPaymentFailed, EventSubscriptionActivated, EventSubscriptionCancelled:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if strings.TrimSpace(e.ProviderCorrelationID) == "" {
		return errors.New("missing provider correlation id")
	}
	return e.Details.Validate(e.Provider)
}

// AuditKey identifies this delivery inside PaymentMetadata.Audit.
func (e PaymentEvent) AuditKey() string {
	id := e.EventID
	if id == "" {
		id = e.ReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	return e.Provider + ":" + e.EventType + ":" + id
}

// MetadataPatch is what a delivery contributes to the payment's metadata.
func (e PaymentEvent) MetadataPatch() models.PaymentMetadata {
	patch := e.Details
	patch.Audit = nil
	if len(e.RawPayload) > 0 && json.Valid(e.RawPayload) {
		patch.Audit = map[string]json.RawMessage{
			e.AuditKey(): json.RawMessage(append([]byte(nil), e.RawPayload...)),
		}
	}
	return patch
}

// Outcome is the result classification of Reconcile.
type Outcome string

const (
	OutcomeSettled          Outcome = "settled"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeOrphaned         Outcome = "orphaned"
	OutcomeUnknownPlan      Outcome = "unknown_plan"
	OutcomeUnknownTenant    Outcome = "unknown_tenant"
	OutcomeMalformedEvent   Outcome = "malformed_event"
	OutcomeFailed           Outcome = "failed"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeNoOp             Outcome = "noop"
)

// Result describes what a reconciliation did.
type Result struct {
	Outcome         Outcome `json:"outcome"`
	PaymentID       string  `json:"payment_id,omitempty"`
	SubscriptionID  string  `json:"subscription_id,omitempty"`
	ClientProfileID string  `json:"client_profile_id,omitempty"`
	Detail          string  `json:"detail,omitempty"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
