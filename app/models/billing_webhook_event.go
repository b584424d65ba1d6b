package models

import "time"

// BillingWebhookEvent is the delivery log of provider webhooks. One row per
// (provider, provider event id); retries of the same delivery update it.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Outcome         string     `gorm:"type:varchar(32);index" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	Retryable       bool       `gorm:"default:false" json:"retryable"`
	Attempts        int        `gorm:"not null;default:1" json:"attempts"`
	ArchiveKey      string     `gorm:"type:varchar(255)" json:"archive_key,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Settled reports whether an earlier attempt finished without a retryable failure.
func (e *BillingWebhookEvent) Settled() bool {
	return e.ProcessedAt != nil && !e.Retryable
}
