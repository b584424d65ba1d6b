package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PayFox/internal/pkg/mail"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

const (
	defaultStaleAfter     = 15 * time.Minute
	defaultRedeliverBatch = 100

	markSentAttempts   = 3
	markSentRetryDelay = 100 * time.Millisecond
)

// Worker delivers queued notifications. The in-app channel is the stored row
// itself; e-mail goes out through the Mailer.
type Worker struct {
	repo    Repository
	mailer  mail.Mailer
	queue   Enqueuer
	metrics *metrics.Metrics
	now     func() time.Time

	StaleAfter time.Duration
}

func NewWorker(repo Repository, mailer mail.Mailer, queue Enqueuer, m *metrics.Metrics) *Worker {
	if m == nil {
		m = metrics.Get()
	}
	return &Worker{
		repo:       repo,
		mailer:     mailer,
		queue:      queue,
		metrics:    m,
		now:        time.Now,
		StaleAfter: defaultStaleAfter,
	}
}

// Register installs the delivery handler on q.
func (w *Worker) Register(q *jobqueue.Queue) {
	q.RegisterHandler(jobqueue.JobTypeNotificationDelivery, w.HandleJob)
}

// HandleJob is the jobqueue.Handler for notification delivery jobs.
func (w *Worker) HandleJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.NotificationDeliveryJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	// the failing attempt has not been counted on job yet
	final := job.RetryCount+1 >= job.MaxRetries
	return w.Deliver(ctx, payload.NotificationID, final)
}

// Deliver sends one notification. final marks the row FAILED when this
// attempt errors.
func (w *Worker) Deliver(ctx context.Context, id string, final bool) error {
	n, err := w.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		log.Warnf("[Notification] %s vanished before delivery", id)
		return nil
	}
	if err != nil {
		return err
	}
	if n.Status != models.NotificationStatusPending {
		return nil
	}

	emailed := false
	if n.HasChannel(models.NotificationChannelEmail) {
		if err := w.sendEmail(ctx, n); err != nil {
			w.metrics.NotificationDeliveries.WithLabelValues(models.NotificationChannelEmail, "error").Inc()
			if merr := w.repo.MarkAttemptFailed(ctx, n.ID, err.Error(), final); merr != nil {
				log.Errorf("[Notification] failed to record attempt for %s: %v", n.ID, merr)
			}
			return err
		}
		emailed = true
		w.metrics.NotificationDeliveries.WithLabelValues(models.NotificationChannelEmail, "sent").Inc()
	}
	if n.HasChannel(models.NotificationChannelInApp) {
		w.metrics.NotificationDeliveries.WithLabelValues(models.NotificationChannelInApp, "sent").Inc()
	}

	if err := w.markSent(ctx, n.ID); err != nil {
		if !emailed {
			return err
		}
		// The mail is out. Failing the job would send it again right away; the
		// row stays PENDING and only the stale sweep can pick it up again.
		log.Errorf("[Notification] %s was e-mailed but could not be marked sent: %v", n.ID, err)
	}
	return nil
}

func (w *Worker) markSent(ctx context.Context, id string) error {
	var err error
	for i := 0; i < markSentAttempts; i++ {
		if err = w.repo.MarkSent(ctx, id, w.now()); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(markSentRetryDelay * time.Duration(i+1)):
		}
	}
	return err
}

func (w *Worker) sendEmail(ctx context.Context, n *models.Notification) error {
	if w.mailer == nil {
		return errors.New("no mailer configured")
	}
	to, err := w.repo.RecipientEmail(ctx, n.ClientProfileID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if to == "" {
		return fmt.Errorf("client profile %s has no billing email", n.ClientProfileID)
	}
	return w.mailer.Send(ctx, to, n.Title, n.Message)
}

// Redeliver re-queues PENDING notifications that have not moved for
// StaleAfter. It covers rows whose queue push failed or whose job expired.
func (w *Worker) Redeliver(ctx context.Context) error {
	stale, err := w.repo.ListStalePending(ctx, w.now().Add(-w.StaleAfter), defaultRedeliverBatch)
	if err != nil {
		return err
	}
	for _, n := range stale {
		if err := w.repo.Touch(ctx, n.ID); err != nil {
			return err
		}
		if _, err := w.queue.EnqueueJob(ctx, jobqueue.JobTypeNotificationDelivery,
			jobqueue.NotificationDeliveryJobPayload{NotificationID: n.ID}.ToMap()); err != nil {
			return fmt.Errorf("requeue %s: %w", n.ID, err)
		}
	}
	if len(stale) > 0 {
		log.Infof("[Notification] Re-queued %d stale notifications", len(stale))
	}
	return nil
}
