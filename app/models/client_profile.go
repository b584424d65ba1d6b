package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClientProfile is the tenant record. The subscription fields are a read-only
// mirror of the tenant's Subscription row used for fast authorization checks.
type ClientProfile struct {
	ID                 string     `gorm:"type:char(36);primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;index" json:"user_id"`
	DisplayName        string     `gorm:"type:varchar(191)" json:"display_name"`
	BillingEmail       string     `gorm:"type:varchar(191)" json:"billing_email"`
	SubscriptionStatus *string    `gorm:"type:varchar(16);default:null" json:"subscription_status,omitempty"`
	SubscriptionStart  *time.Time `gorm:"type:timestamp;default:null" json:"subscription_start,omitempty"`
	SubscriptionEnd    *time.Time `gorm:"type:timestamp;default:null" json:"subscription_end,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ClientProfile) TableName() string {
	return "client_profiles"
}

func (p *ClientProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// MirrorSubscription copies the subscription window onto the profile.
func (p *ClientProfile) MirrorSubscription(sub *Subscription) {
	status := sub.Status
	start := sub.StartDate
	end := sub.EndDate
	p.SubscriptionStatus = &status
	p.SubscriptionStart = &start
	p.SubscriptionEnd = &end
}

// MirrorsSubscription reports whether the mirror fields equal sub.
func (p *ClientProfile) MirrorsSubscription(sub *Subscription) bool {
	if sub == nil {
		return p.SubscriptionStatus == nil && p.SubscriptionStart == nil && p.SubscriptionEnd == nil
	}
	if p.SubscriptionStatus == nil || p.SubscriptionStart == nil || p.SubscriptionEnd == nil {
		return false
	}
	return *p.SubscriptionStatus == sub.Status &&
		p.SubscriptionStart.Equal(sub.StartDate) &&
		p.SubscriptionEnd.Equal(sub.EndDate)
}
