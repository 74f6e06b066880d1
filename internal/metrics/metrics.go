package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the billing engine
type Metrics struct {
	registry *prometheus.Registry

	// Inbound provider callbacks
	WebhooksReceivedTotal *prometheus.CounterVec

	// Outgoing client deliveries
	DeliveryAttemptsTotal   *prometheus.CounterVec
	DeliveryAttemptDuration *prometheus.HistogramVec

	// Scheduled jobs
	JobRunsTotal  *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	JobItemsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		WebhooksReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexbill_webhooks_received_total",
				Help: "Total number of inbound provider webhooks by outcome",
			},
			[]string{"provider", "outcome"},
		),
		DeliveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexbill_webhook_delivery_attempts_total",
				Help: "Total number of outgoing webhook delivery attempts by outcome",
			},
			[]string{"event", "outcome"},
		),
		DeliveryAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flexbill_webhook_delivery_duration_seconds",
				Help:    "Outgoing webhook delivery attempt duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexbill_job_runs_total",
				Help: "Total number of scheduled job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flexbill_job_duration_seconds",
				Help:    "Scheduled job duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"job"},
		),
		JobItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexbill_job_items_total",
				Help: "Total number of records handled by scheduled jobs",
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(
		m.WebhooksReceivedTotal,
		m.DeliveryAttemptsTotal,
		m.DeliveryAttemptDuration,
		m.JobRunsTotal,
		m.JobDuration,
		m.JobItemsTotal,
	)
	return m
}

// NewRegistry returns a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// New creates metrics on a fresh registry
func New() *Metrics {
	return NewMetrics(NewRegistry())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordWebhookReceived(provider, outcome string) {
	if m == nil {
		return
	}
	m.WebhooksReceivedTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordDeliveryAttempt(event, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DeliveryAttemptsTotal.WithLabelValues(event, outcome).Inc()
	m.DeliveryAttemptDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordJobRun records one run of a scheduled job across all tenants
func (m *Metrics) RecordJobRun(job, outcome string, items int, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
	m.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	m.JobItemsTotal.WithLabelValues(job).Add(float64(items))
}
