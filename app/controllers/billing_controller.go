package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics"
)

const defaultWebhookTimeout = 15 * time.Second

// WebhookLog is the delivery log the handlers write through.
type WebhookLog interface {
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (*models.BillingWebhookEvent, bool, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome string, processingErr error) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, ev billing.PaymentEvent) (billing.Result, error)
}

type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// WebhookController receives provider webhooks and hands them to the coordinator.
type WebhookController struct {
	adapters   billing.Adapters
	log        WebhookLog
	reconciler Reconciler
	archive    JobEnqueuer // nil when archiving is disabled
	metrics    *metrics.Metrics
	timeout    time.Duration
	now        func() time.Time
}

func NewWebhookController(adapters billing.Adapters, webhookLog WebhookLog, reconciler Reconciler, archive JobEnqueuer, m *metrics.Metrics) *WebhookController {
	if m == nil {
		m = metrics.Get()
	}
	return &WebhookController{
		adapters:   adapters,
		log:        webhookLog,
		reconciler: reconciler,
		archive:    archive,
		metrics:    m,
		timeout:    defaultWebhookTimeout,
		now:        time.Now,
	}
}

func (w *WebhookController) SetTimeout(d time.Duration) {
	if d > 0 {
		w.timeout = d
	}
}

// Handle returns the fiber handler for one provider's webhook route.
func (w *WebhookController) Handle(provider string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adapter, ok := w.adapters.Get(provider)
		if !ok {
			return w.respond(c, provider, fiber.StatusNotFound, fiber.Map{"error": "unknown_provider"})
		}
		return w.handle(c, adapter)
	}
}

func (w *WebhookController) handle(c *fiber.Ctx, adapter billing.Adapter) error {
	provider := adapter.Provider()
	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := requestHeaders(c)
	receivedAt := w.now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := adapter.Verify(ctx, rawBody, headers); err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			log.Warnf("[Webhook] %s signature rejected from %s: %v", provider, clientIP(c), err)
			return w.respond(c, provider, fiber.StatusUnauthorized, fiber.Map{"error": "invalid_signature"})
		}
		log.Errorf("[Webhook] %s signature verification unavailable: %v", provider, err)
		return w.respond(c, provider, fiber.StatusServiceUnavailable, fiber.Map{"error": "verification_unavailable"})
	}

	ev, normErr := adapter.Normalize(rawBody, receivedAt)
	eventType := ev.EventType
	var ne *billing.NormalizationError
	if errors.As(normErr, &ne) {
		eventType = ne.EventType
	}

	stored, duplicate, err := w.log.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        provider,
		ProviderEventID: ev.EventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Webhook] %s delivery could not be logged: %v", provider, err)
		return w.respond(c, provider, fiber.StatusServiceUnavailable, fiber.Map{"error": "webhook_persist_failed"})
	}
	if duplicate {
		log.Debugf("[Webhook] %s event %s already processed", provider, stored.ProviderEventID)
		return w.respond(c, provider, fiber.StatusOK, fiber.Map{"ok": true, "duplicate": true, "outcome": stored.Outcome})
	}
	defer w.enqueueArchive(stored)

	if normErr != nil {
		log.Warnf("[Webhook] %s", normErr.Error())
		outcome := string(billing.OutcomeMalformedEvent)
		if err := w.log.MarkWebhookProcessed(ctx, stored.ID, outcome, normErr); err != nil {
			log.Errorf("[Webhook] mark webhook %d processed: %v", stored.ID, err)
		}
		return w.respond(c, provider, fiber.StatusOK, fiber.Map{"ok": true, "outcome": outcome})
	}

	res, err := w.reconciler.Reconcile(ctx, ev)
	if markErr := w.log.MarkWebhookProcessed(ctx, stored.ID, string(res.Outcome), err); markErr != nil {
		log.Errorf("[Webhook] mark webhook %d processed: %v", stored.ID, markErr)
	}
	if err != nil {
		status := fiber.StatusInternalServerError
		if billing.IsRetryable(err) {
			status = fiber.StatusServiceUnavailable
		}
		return w.respond(c, provider, status, fiber.Map{"error": "reconcile_failed"})
	}

	return w.respond(c, provider, fiber.StatusOK, fiber.Map{"ok": true, "outcome": res.Outcome})
}

func (w *WebhookController) enqueueArchive(event *models.BillingWebhookEvent) {
	if w.archive == nil || event == nil || event.ArchiveKey != "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := jobqueue.WebhookArchiveJobPayload{
		WebhookEventID:  event.ID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
	}
	if _, err := w.archive.EnqueueJob(ctx, jobqueue.JobTypeWebhookArchive, payload.ToMap()); err != nil {
		log.Warnf("[Webhook] archive job for webhook %d not queued: %v", event.ID, err)
	}
}

func (w *WebhookController) respond(c *fiber.Ctx, provider string, status int, body fiber.Map) error {
	w.metrics.WebhookResponses.WithLabelValues(provider, strconv.Itoa(status)).Inc()
	return c.Status(status).JSON(body)
}

func requestHeaders(c *fiber.Ctx) http.Header {
	headers := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})
	return headers
}
