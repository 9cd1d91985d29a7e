package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication / authorization metrics
	AuthFailuresTotal   *prometheus.CounterVec
	AuthDecisionsTotal  *prometheus.CounterVec
	IdentityBuilds      *prometheus.CounterVec
	JWKSCacheHitsTotal  prometheus.Counter
	JWKSCacheMissTotal  prometheus.Counter
	JWKSFetchDuration   prometheus.Histogram

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec

	// Queue metrics
	QueuePublishTotal  *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	QueuePublishErrors prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	AssetsTotal         prometheus.Gauge
	AccessRequestsOpen  prometheus.Gauge
	WorkflowJobsPending prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assethub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assethub_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assethub_auth_failures_total",
				Help: "Authentication failures by reason",
			},
			[]string{"reason"},
		),
		AuthDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assethub_auth_decisions_total",
				Help: "Policy enforcement decisions by object, action and outcome",
			},
			[]string{"object", "action", "decision"},
		),
		IdentityBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assethub_identity_builds_total",
				Help: "Identity constructions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		JWKSCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "assethub_jwks_cache_hits_total",
				Help: "Discovery/JWKS cache hits",
			},
		),
		JWKSCacheMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "assethub_jwks_cache_misses_total",
				Help: "Discovery/JWKS cache misses",
			},
		),
		JWKSFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assethub_jwks_fetch_duration_seconds",
				Help:    "Latency of discovery/JWKS fetches",
				Buckets: prometheus.DefBuckets,
			},
		),
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assethub_storage_operations_total",
				Help: "Total storage operations by entity and operation",
			},
			[]string{"entity", "operation"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assethub_storage_operation_duration_seconds",
				Help:    "Storage operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assethub_storage_errors_total",
				Help: "Storage operation errors by entity and operation",
			},
			[]string{"entity", "operation"},
		),
		QueuePublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assethub_queue_publish_total",
				Help: "Messages published to the workflow queue by kind",
			},
			[]string{"kind"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assethub_queue_depth",
				Help: "Current workflow queue depth",
			},
		),
		QueuePublishErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "assethub_queue_publish_errors_total",
				Help: "Failed publishes to the workflow queue",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assethub_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assethub_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		AssetsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assethub_assets_total",
				Help: "Total number of registered assets",
			},
		),
		AccessRequestsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assethub_access_requests_open",
				Help: "Access requests currently pending",
			},
		),
		WorkflowJobsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assethub_workflow_jobs_pending",
				Help: "Workflow jobs waiting for a worker",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthFailuresTotal,
		m.AuthDecisionsTotal,
		m.IdentityBuilds,
		m.JWKSCacheHitsTotal,
		m.JWKSCacheMissTotal,
		m.JWKSFetchDuration,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
		m.QueuePublishTotal,
		m.QueueDepth,
		m.QueuePublishErrors,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.AssetsTotal,
		m.AccessRequestsOpen,
		m.WorkflowJobsPending,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics. The path label
// should be the route template, not the raw URL, to keep cardinality bounded.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the response status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
