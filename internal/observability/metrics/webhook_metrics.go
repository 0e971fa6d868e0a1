// Package metrics exposes prometheus instruments for the webhook pipeline.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the const labels attached to every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// WebhookMetrics instruments the HTTP-facing webhook pipeline.
type WebhookMetrics struct {
	deliveries  *prometheus.CounterVec
	rateLimited prometheus.Counter
	authFailed  *prometheus.CounterVec
	enqueued    prometheus.Counter
}

// WorkerMetrics instruments the sync worker pool.
type WorkerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration prometheus.Histogram
	jobRetries  prometheus.Counter
	jobsDead    prometheus.Counter
	synced      *prometheus.CounterVec
	syncErrors  *prometheus.CounterVec
}

var (
	metricsOnce    sync.Once
	webhookMetrics *WebhookMetrics
	workerMetrics  *WorkerMetrics
)

// Webhook returns the singleton webhook metrics.
func Webhook() *WebhookMetrics {
	return WebhookWithConfig(Config{})
}

// Worker returns the singleton worker metrics.
func Worker() *WorkerMetrics {
	WebhookWithConfig(Config{})
	return workerMetrics
}

// WebhookWithConfig returns the singleton metrics using config labels.
func WebhookWithConfig(cfg Config) *WebhookMetrics {
	metricsOnce.Do(func() {
		webhookMetrics, workerMetrics = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

// ResetMetricsForTest unregisters the singletons so the next fixture can
// register fresh instruments.
func ResetMetricsForTest() {
	if webhookMetrics != nil {
		prometheus.Unregister(webhookMetrics.deliveries)
		prometheus.Unregister(webhookMetrics.rateLimited)
		prometheus.Unregister(webhookMetrics.authFailed)
		prometheus.Unregister(webhookMetrics.enqueued)
	}
	if workerMetrics != nil {
		prometheus.Unregister(workerMetrics.jobRuns)
		prometheus.Unregister(workerMetrics.jobDuration)
		prometheus.Unregister(workerMetrics.jobRetries)
		prometheus.Unregister(workerMetrics.jobsDead)
		prometheus.Unregister(workerMetrics.synced)
		prometheus.Unregister(workerMetrics.syncErrors)
	}
	metricsOnce = sync.Once{}
	webhookMetrics = nil
	workerMetrics = nil
}

func newMetrics(registerer prometheus.Registerer, cfg Config) (*WebhookMetrics, *WorkerMetrics) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "invosync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invosync_webhook_deliveries_total",
		Help:        "Webhook deliveries by method and outcome.",
		ConstLabels: constLabels,
	}, []string{"method", "outcome"})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "invosync_webhook_rate_limited_total",
		Help:        "Webhook deliveries rejected by the per-IP rate limiter.",
		ConstLabels: constLabels,
	})
	authFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invosync_webhook_auth_failures_total",
		Help:        "Webhook deliveries failing signature or token checks.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	enqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "invosync_webhook_jobs_enqueued_total",
		Help:        "Sync jobs enqueued from accepted deliveries.",
		ConstLabels: constLabels,
	})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invosync_worker_job_runs_total",
		Help:        "Worker job executions by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	jobDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "invosync_worker_job_duration_seconds",
		Help:        "Sync job execution latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	})
	jobRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "invosync_worker_job_retries_total",
		Help:        "Sync jobs rescheduled after a failed attempt.",
		ConstLabels: constLabels,
	})
	jobsDead := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "invosync_worker_jobs_dead_total",
		Help:        "Sync jobs dead-lettered after exhausting retries.",
		ConstLabels: constLabels,
	})
	synced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invosync_resources_synced_total",
		Help:        "Resources upserted or deleted by type and action.",
		ConstLabels: constLabels,
	}, []string{"resource", "action"})
	syncErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "invosync_resource_sync_errors_total",
		Help:        "Per-resource sync failures by type.",
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		deliveries, rateLimited, authFailed, enqueued,
		jobRuns, jobDuration, jobRetries, jobsDead, synced, syncErrors,
	)

	return &WebhookMetrics{
			deliveries:  deliveries,
			rateLimited: rateLimited,
			authFailed:  authFailed,
			enqueued:    enqueued,
		}, &WorkerMetrics{
			jobRuns:     jobRuns,
			jobDuration: jobDuration,
			jobRetries:  jobRetries,
			jobsDead:    jobsDead,
			synced:      synced,
			syncErrors:  syncErrors,
		}
}

func (m *WebhookMetrics) IncDelivery(method, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(method, outcome).Inc()
}

func (m *WebhookMetrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *WebhookMetrics) IncAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailed.WithLabelValues(reason).Inc()
}

func (m *WebhookMetrics) IncEnqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

func (m *WorkerMetrics) IncJobRun(outcome string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(outcome).Inc()
}

func (m *WorkerMetrics) ObserveJobDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.Observe(d.Seconds())
}

func (m *WorkerMetrics) IncJobRetry() {
	if m == nil {
		return
	}
	m.jobRetries.Inc()
}

func (m *WorkerMetrics) IncJobDead() {
	if m == nil {
		return
	}
	m.jobsDead.Inc()
}

func (m *WorkerMetrics) IncSynced(resource, action string) {
	if m == nil {
		return
	}
	m.synced.WithLabelValues(resource, action).Inc()
}

func (m *WorkerMetrics) IncSyncError(resource string) {
	if m == nil {
		return
	}
	m.syncErrors.WithLabelValues(resource).Inc()
}
