package billing

import (
	"fmt"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/plancatalog"
)

func noticeChannels(profile *models.ClientProfile) []string {
	channels := []string{models.NotificationChannelInApp}
	if profile.BillingEmail != "" {
		channels = append(channels, models.NotificationChannelEmail)
	}
	return channels
}

func paymentReceivedNotice(profile *models.ClientProfile, plan plancatalog.PlanDefinition, payment *models.PaymentRecord, sub *models.Subscription) *models.Notification {
	return &models.Notification{
		ClientProfileID: profile.ID,
		UserID:          profile.UserID,
		Type:            models.NotificationTypePaymentReceived,
		Title:           "Payment received",
		Message: fmt.Sprintf("We received your payment of %s for the %s plan. Your subscription is active until %s.",
			formatAmount(payment.Amount, payment.Currency), plan.DisplayName, sub.EndDate.Format("2006-01-02")),
		Channels: noticeChannels(profile),
		Status:   models.NotificationStatusPending,
	}
}

func paymentFailedNotice(profile *models.ClientProfile, payment *models.PaymentRecord) *models.Notification {
	return &models.Notification{
		ClientProfileID: profile.ID,
		UserID:          profile.UserID,
		Type:            models.NotificationTypePaymentFailed,
		Title:           "Payment failed",
		Message:         fmt.Sprintf("Your payment of %s could not be completed.", formatAmount(payment.Amount, payment.Currency)),
		Channels:        noticeChannels(profile),
		Status:          models.NotificationStatusPending,
	}
}

func subscriptionCancelledNotice(profile *models.ClientProfile, sub *models.Subscription) *models.Notification {
	return &models.Notification{
		ClientProfileID: profile.ID,
		UserID:          profile.UserID,
		Type:            models.NotificationTypeSubscriptionCancelled,
		Title:           "Subscription cancelled",
		Message:         fmt.Sprintf("Your %s subscription has been cancelled.", sub.Plan),
		Channels:        noticeChannels(profile),
		Status:          models.NotificationStatusPending,
	}
}

func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}
