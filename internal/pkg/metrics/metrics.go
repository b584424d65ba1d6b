package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the billing Prometheus collectors.
type Metrics struct {
	ReconcileOutcomes           *prometheus.CounterVec
	ReconcileDuration           *prometheus.HistogramVec
	BillingAnomalies            *prometheus.CounterVec
	WebhookResponses            *prometheus.CounterVec
	NotificationEnqueueFailures *prometheus.CounterVec
	NotificationDeliveries      *prometheus.CounterVec
	JobsProcessed               *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ReconcileOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfox_reconcile_outcomes_total",
				Help: "Reconciliation results by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payfox_reconcile_duration_seconds",
				Help:    "Time spent reconciling one payment event",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		BillingAnomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfox_billing_anomalies_total",
				Help: "Events that need operator attention (unknown plan, unknown tenant, missing correlation)",
			},
			[]string{"provider", "kind"},
		),
		WebhookResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfox_webhook_responses_total",
				Help: "Webhook HTTP responses by provider and status code",
			},
			[]string{"provider", "code"},
		),
		NotificationEnqueueFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfox_notification_enqueue_failures_total",
				Help: "Notifications that could not be handed to the dispatcher",
			},
			[]string{"type"},
		),
		NotificationDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfox_notification_deliveries_total",
				Help: "Notification delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		JobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payfox_jobs_processed_total",
				Help: "Background jobs by type and result",
			},
			[]string{"type", "result"},
		),
	}

	registry.MustRegister(
		m.ReconcileOutcomes,
		m.ReconcileDuration,
		m.BillingAnomalies,
		m.WebhookResponses,
		m.NotificationEnqueueFailures,
		m.NotificationDeliveries,
		m.JobsProcessed,
	)
	return m
}

var (
	defaultRegistry *prometheus.Registry
	defaultMetrics  *Metrics
	once            sync.Once
)

func setup() {
	once.Do(func() {
		defaultRegistry = prometheus.NewRegistry()
		defaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		defaultMetrics = NewMetrics(defaultRegistry)
	})
}

// Get returns the process-wide collectors.
func Get() *Metrics {
	setup()
	return defaultMetrics
}

// Registry returns the registry backing Get, for the /metrics endpoint.
func Registry() *prometheus.Registry {
	setup()
	return defaultRegistry
}
