package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ReconcileOutcomes.WithLabelValues("paypal", "settled").Inc()
	m.ReconcileOutcomes.WithLabelValues("paypal", "settled").Inc()
	m.BillingAnomalies.WithLabelValues("stripe", "unknown_plan").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReconcileOutcomes.WithLabelValues("paypal", "settled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BillingAnomalies.WithLabelValues("stripe", "unknown_plan")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "payfox_reconcile_outcomes_total")
	assert.Contains(t, names, "payfox_billing_anomalies_total")
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
	assert.NotNil(t, Registry())
}
