package billing

import (
	"context"

	"github.com/ManuelReschke/PayFox/app/models"
)

// Store runs reconciliation steps atomically. A non-nil error from fn rolls
// back every write made through the StoreTx.
type Store interface {
	Transaction(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the record-store contract used inside one transaction.
// Lock* methods hold the row until the transaction ends.
type StoreTx interface {
	LockPayment(ctx context.Context, provider, correlationID string) (*models.PaymentRecord, error)
	LockClientProfile(ctx context.Context, clientProfileID string) (*models.ClientProfile, error)
	GetSubscription(ctx context.Context, clientProfileID string) (*models.Subscription, error)
	// SaveSubscription upserts by client profile id.
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	// TransitionPayment writes status, payment date, subscription link and
	// metadata only while the stored status is one of from. It reports
	// whether the row changed.
	TransitionPayment(ctx context.Context, p *models.PaymentRecord, from ...string) (bool, error)
	UpdateClientProfileMirror(ctx context.Context, profile *models.ClientProfile) error
}

// Dispatcher queues user-facing notifications. It is fire-and-forget.
type Dispatcher interface {
	Enqueue(ctx context.Context, n *models.Notification) error
}
