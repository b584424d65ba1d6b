package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionStatusTrial     = "TRIAL"
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusExpired   = "EXPIRED"
	SubscriptionStatusSuspended = "SUSPENDED"
	SubscriptionStatusCancelled = "CANCELLED"
)

// Subscription is the authoritative billing state of a tenant. There is at
// most one row per client profile.
type Subscription struct {
	ID              string     `gorm:"type:char(36);primaryKey" json:"id"`
	ClientProfileID string     `gorm:"type:char(36);not null;uniqueIndex:ux_subscriptions_client_profile" json:"client_profile_id"`
	Plan            string     `gorm:"type:varchar(64);not null" json:"plan"`
	Amount          int64      `gorm:"not null" json:"amount"`
	Currency        string     `gorm:"type:varchar(3);not null" json:"currency"`
	StartDate       time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate         time.Time  `gorm:"type:timestamp;not null" json:"end_date"`
	LastPaymentDate time.Time  `gorm:"type:timestamp;not null" json:"last_payment_date"`
	NextPaymentDate time.Time  `gorm:"type:timestamp;not null" json:"next_payment_date"`
	Status          string     `gorm:"type:varchar(16);not null;index" json:"status"`
	AutoRenew       bool       `gorm:"not null" json:"auto_renew"`
	CancelledAt     *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
