package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationTypePaymentReceived       = "PAYMENT_RECEIVED"
	NotificationTypePaymentFailed         = "PAYMENT_FAILED"
	NotificationTypeSubscriptionCancelled = "SUBSCRIPTION_CANCELLED"
)

const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

const (
	NotificationChannelInApp = "in_app"
	NotificationChannelEmail = "email"
)

type Notification struct {
	ID              string     `gorm:"type:char(36);primaryKey" json:"id"`
	ClientProfileID string     `gorm:"type:char(36);not null;index" json:"client_profile_id" validate:"required"`
	UserID          uint       `gorm:"index" json:"user_id"`
	Type            string     `gorm:"type:varchar(50);not null" json:"type" validate:"required,oneof=PAYMENT_RECEIVED PAYMENT_FAILED SUBSCRIPTION_CANCELLED"`
	Title           string     `gorm:"type:varchar(191);not null" json:"title" validate:"required"`
	Message         string     `gorm:"type:text" json:"message"`
	Channels        []string   `gorm:"type:json;serializer:json" json:"channels" validate:"min=1,dive,oneof=in_app email"`
	Status          string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	LastError       string     `gorm:"type:text" json:"last_error,omitempty"`
	SentAt          *time.Time `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = NotificationStatusPending
	}
	return nil
}

// HasChannel reports whether the notification should go out on channel.
func (n *Notification) HasChannel(channel string) bool {
	for _, c := range n.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (n *Notification) Validate() error {
	v := validator.New()
	return v.Struct(n)
}
