package notification

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
	"github.com/gofiber/fiber/v2/log"
)

// Enqueuer is the part of jobqueue.Queue the dispatcher needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// QueueDispatcher stores a notification as PENDING and hands its id to the
// job queue. Delivery happens in Worker.
type QueueDispatcher struct {
	repo  Repository
	queue Enqueuer
}

func NewQueueDispatcher(repo Repository, queue Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{repo: repo, queue: queue}
}

func (d *QueueDispatcher) Enqueue(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationStatusPending
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}
	if err := d.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	// The row exists now; if the push fails the redelivery sweep picks it up.
	if _, err := d.queue.EnqueueJob(ctx, jobqueue.JobTypeNotificationDelivery,
		jobqueue.NotificationDeliveryJobPayload{NotificationID: n.ID}.ToMap()); err != nil {
		log.Warnf("[Notification] %s stored but not queued: %v", n.ID, err)
		return fmt.Errorf("queue notification %s: %w", n.ID, err)
	}
	return nil
}
