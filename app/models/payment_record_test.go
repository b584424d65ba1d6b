package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMetadataMergeNeverOverwrites(t *testing.T) {
	m := PaymentMetadata{
		PlanID:          "PREMIUM",
		ClientProfileID: "C1",
		PayPal:          &PayPalPaymentFields{OrderID: "ORD-1"},
		Audit:           map[string]json.RawMessage{"paypal:first": json.RawMessage(`{"a":1}`)},
	}

	m.Merge(PaymentMetadata{
		PlanID: "BASIC",
		PayPal: &PayPalPaymentFields{OrderID: "ORD-2", CaptureID: "CAP-9"},
		Audit: map[string]json.RawMessage{
			"paypal:first":  json.RawMessage(`{"a":2}`),
			"paypal:second": json.RawMessage(`{"b":1}`),
		},
	})

	assert.Equal(t, "PREMIUM", m.PlanID)
	assert.Equal(t, "C1", m.ClientProfileID)
	assert.Equal(t, "ORD-1", m.PayPal.OrderID)
	assert.Equal(t, "CAP-9", m.PayPal.CaptureID)
	assert.JSONEq(t, `{"a":1}`, string(m.Audit["paypal:first"]))
	assert.JSONEq(t, `{"b":1}`, string(m.Audit["paypal:second"]))
}

func TestPaymentMetadataMergeIntoEmpty(t *testing.T) {
	var m PaymentMetadata
	m.Merge(PaymentMetadata{
		Stripe: &StripePaymentFields{PaymentIntentID: "pi_1"},
		Audit:  map[string]json.RawMessage{"k": json.RawMessage(`1`)},
	})

	require.NotNil(t, m.Stripe)
	assert.Equal(t, "pi_1", m.Stripe.PaymentIntentID)
	assert.Nil(t, m.PayPal)
	assert.Len(t, m.Audit, 1)
}

func TestPaymentMetadataValidate(t *testing.T) {
	assert.NoError(t, PaymentMetadata{PayPal: &PayPalPaymentFields{}}.Validate(ProviderPayPal))
	assert.Error(t, PaymentMetadata{Stripe: &StripePaymentFields{}}.Validate(ProviderPayPal))
	assert.Error(t, PaymentMetadata{PayPal: &PayPalPaymentFields{}}.Validate(ProviderStripe))
	assert.Error(t, PaymentMetadata{}.Validate("square"))
}

func TestPaymentRecordResolvedFields(t *testing.T) {
	p := &PaymentRecord{PlanID: "BASIC", Metadata: PaymentMetadata{PlanID: "PREMIUM", ClientProfileID: "C9"}}
	assert.Equal(t, "PREMIUM", p.ResolvedPlanID())
	assert.Equal(t, "C9", p.ResolvedClientProfileID())

	p.ClientProfileID = "C1"
	assert.Equal(t, "C1", p.ResolvedClientProfileID())
}

func TestClientProfileMirror(t *testing.T) {
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: SubscriptionStatusActive, StartDate: start, EndDate: start.AddDate(0, 1, 0)}

	p := &ClientProfile{}
	assert.False(t, p.MirrorsSubscription(sub))
	assert.True(t, p.MirrorsSubscription(nil))

	p.MirrorSubscription(sub)
	assert.True(t, p.MirrorsSubscription(sub))

	sub.Status = SubscriptionStatusCancelled
	assert.False(t, p.MirrorsSubscription(sub))
}
