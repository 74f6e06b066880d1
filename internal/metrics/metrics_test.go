package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordWebhookReceived("stripe", "processed")
	m.RecordWebhookReceived("stripe", "processed")
	m.RecordWebhookReceived("stripe", "duplicate")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.WebhooksReceivedTotal.WithLabelValues("stripe", "processed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhooksReceivedTotal.WithLabelValues("stripe", "duplicate")))

	m.RecordDeliveryAttempt("invoice.paid", "success", 20*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeliveryAttemptsTotal.WithLabelValues("invoice.paid", "success")))

	m.RecordJobRun("renewal_due", "success", 7, time.Second)
	assert.Equal(t, float64(7), testutil.ToFloat64(m.JobItemsTotal.WithLabelValues("renewal_due")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordWebhookReceived("nomod", "failed")
		m.RecordDeliveryAttempt("payment.failed", "failed", time.Second)
		m.RecordJobRun("prune", "failed", 0, time.Second)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordJobRun("prune", "success", 1, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "flexbill_job_runs_total")
	assert.Contains(t, string(body), "go_goroutines")
}
