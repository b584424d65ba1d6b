package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProviderPayPal = "paypal"
	ProviderStripe = "stripe"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// PaymentRecord is one checkout attempt. Rows are created when a tenant starts
// a checkout and are only ever updated afterwards, never deleted.
type PaymentRecord struct {
	ID                    string          `gorm:"type:char(36);primaryKey" json:"id"`
	ClientProfileID       string          `gorm:"type:char(36);not null;index" json:"client_profile_id"`
	PlanID                string          `gorm:"type:varchar(64);not null" json:"plan_id"`
	Provider              string          `gorm:"type:varchar(20);not null;index:ux_payment_records_provider_correlation,unique,priority:1" json:"provider"`
	ProviderCorrelationID string          `gorm:"type:varchar(191);not null;index:ux_payment_records_provider_correlation,unique,priority:2" json:"provider_correlation_id"`
	Amount                int64           `gorm:"not null" json:"amount"`
	Currency              string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status                string          `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	PaymentDate           *time.Time      `gorm:"type:timestamp;default:null" json:"payment_date,omitempty"`
	SubscriptionID        *string         `gorm:"type:char(36);index" json:"subscription_id,omitempty"`
	Metadata              PaymentMetadata `gorm:"type:json;serializer:json" json:"metadata"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}

func (p *PaymentRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	return nil
}

// ResolvedPlanID prefers the plan captured in metadata at checkout time.
func (p *PaymentRecord) ResolvedPlanID() string {
	if p.Metadata.PlanID != "" {
		return p.Metadata.PlanID
	}
	return p.PlanID
}

// ResolvedClientProfileID prefers the column, falling back to metadata.
func (p *PaymentRecord) ResolvedClientProfileID() string {
	if p.ClientProfileID != "" {
		return p.ClientProfileID
	}
	return p.Metadata.ClientProfileID
}

// PaymentMetadata is the structured replacement for a free-form key/value bag.
// Exactly one provider section may be populated and it must match the record's
// provider. Audit collects raw webhook payloads keyed by delivery.
type PaymentMetadata struct {
	PlanID          string                     `json:"plan_id,omitempty"`
	ClientProfileID string                     `json:"client_profile_id,omitempty"`
	PayPal          *PayPalPaymentFields       `json:"paypal,omitempty"`
	Stripe          *StripePaymentFields       `json:"stripe,omitempty"`
	Audit           map[string]json.RawMessage `json:"audit,omitempty"`
}

type PayPalPaymentFields struct {
	OrderID        string `json:"order_id,omitempty"`
	CaptureID      string `json:"capture_id,omitempty"`
	PayerID        string `json:"payer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type StripePaymentFields struct {
	PaymentIntentID   string `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	CustomerID        string `json:"customer_id,omitempty"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
}

// Validate rejects metadata whose provider section does not belong to provider.
func (m PaymentMetadata) Validate(provider string) error {
	switch provider {
	case ProviderPayPal:
		if m.Stripe != nil {
			return fmt.Errorf("stripe metadata on %s payment", provider)
		}
	case ProviderStripe:
		if m.PayPal != nil {
			return fmt.Errorf("paypal metadata on %s payment", provider)
		}
	default:
		return fmt.Errorf("unknown payment provider %q", provider)
	}
	return nil
}

// Merge adds information from other without overwriting anything already captured.
func (m *PaymentMetadata) Merge(other PaymentMetadata) {
	if m.PlanID == "" {
		m.PlanID = other.PlanID
	}
	if m.ClientProfileID == "" {
		m.ClientProfileID = other.ClientProfileID
	}

	if other.PayPal != nil {
		if m.PayPal == nil {
			m.PayPal = &PayPalPaymentFields{}
		}
		fillEmpty(&m.PayPal.OrderID, other.PayPal.OrderID)
		fillEmpty(&m.PayPal.CaptureID, other.PayPal.CaptureID)
		fillEmpty(&m.PayPal.PayerID, other.PayPal.PayerID)
		fillEmpty(&m.PayPal.SubscriptionID, other.PayPal.SubscriptionID)
	}
	if other.Stripe != nil {
		if m.Stripe == nil {
			m.Stripe = &StripePaymentFields{}
		}
		fillEmpty(&m.Stripe.PaymentIntentID, other.Stripe.PaymentIntentID)
		fillEmpty(&m.Stripe.CheckoutSessionID, other.Stripe.CheckoutSessionID)
		fillEmpty(&m.Stripe.CustomerID, other.Stripe.CustomerID)
		fillEmpty(&m.Stripe.SubscriptionID, other.Stripe.SubscriptionID)
	}

	for k, v := range other.Audit {
		if m.Audit == nil {
			m.Audit = make(map[string]json.RawMessage, len(other.Audit))
		}
		if _, exists := m.Audit[k]; exists {
			continue
		}
		m.Audit[k] = v
	}
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
