package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudmast/cloudmast/pkg/provision"
)

// Metrics provides Prometheus metrics for cloudmast.
type Metrics struct {
	config MetricsConfig

	// Lifecycle operation metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	pollAttempts      *prometheus.HistogramVec

	// Backend call metrics
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec

	// Resource metrics
	resourcesManaged *prometheus.GaugeVec

	// Alert metrics
	openAlerts *prometheus.GaugeVec

	// Sync metrics
	syncsTotal   *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	staleMarked  *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Lifecycle operation metrics
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of lifecycle operations",
			},
			[]string{"provider", "kind", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Wall time of lifecycle operation chains in seconds",
				// Chains wait on vendor actions and run for minutes.
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"provider", "kind"},
		),
		pollAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_attempts",
				Help:      "Poll attempts consumed per lifecycle operation",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 300},
			},
			[]string{"provider", "kind"},
		),

		// Backend call metrics
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Total number of backend API calls",
			},
			[]string{"provider", "operation"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "Duration of backend API calls in seconds",
				Buckets:   buckets,
			},
			[]string{"provider", "operation"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of backend API errors",
			},
			[]string{"provider", "operation", "class"},
		),

		// Resource metrics
		resourcesManaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_managed",
				Help:      "Current number of managed resources",
			},
			[]string{"provider", "state"},
		),

		// Alert metrics
		openAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_alerts",
				Help:      "Current number of open alerts",
			},
			[]string{"kind", "service"},
		),

		// Sync metrics
		syncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syncs_total",
				Help:      "Total number of service sync passes",
			},
			[]string{"service", "status"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of service sync passes in seconds",
				Buckets:   buckets,
			},
			[]string{"service"},
		),
		staleMarked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_resources_total",
				Help:      "Total number of resources marked erred because their vendor object vanished",
			},
			[]string{"service"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.pollAttempts,
		m.backendCalls,
		m.backendDuration,
		m.backendErrors,
		m.resourcesManaged,
		m.openAlerts,
		m.syncsTotal,
		m.syncDuration,
		m.staleMarked,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// Lifecycle Operation Metrics

// ObserveOperation records a settled lifecycle operation. Implements the
// chain metrics hook of the provisioning runner.
func (m *Metrics) ObserveOperation(provider string, kind provision.OperationKind, status provision.OperationStatus, d time.Duration) {
	if m.operationsTotal == nil {
		return
	}
	m.operationsTotal.WithLabelValues(provider, string(kind), string(status)).Inc()
	m.operationDuration.WithLabelValues(provider, string(kind)).Observe(d.Seconds())
}

// ObservePollAttempts records the poll attempts one operation consumed.
func (m *Metrics) ObservePollAttempts(provider string, kind provision.OperationKind, attempts int) {
	if m.pollAttempts == nil {
		return
	}
	m.pollAttempts.WithLabelValues(provider, string(kind)).Observe(float64(attempts))
}

// Backend Metrics

// RecordBackendCall records a backend API call with its duration.
func (m *Metrics) RecordBackendCall(provider, operation string, duration time.Duration) {
	if m.backendCalls == nil {
		return
	}
	m.backendCalls.WithLabelValues(provider, operation).Inc()
	m.backendDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordBackendError records a classified backend error.
func (m *Metrics) RecordBackendError(provider, operation string, class provision.ErrorClass) {
	if m.backendErrors == nil {
		return
	}
	m.backendErrors.WithLabelValues(provider, operation, string(class)).Inc()
}

// Resource Metrics

// SetResourceCount sets the current count of managed resources.
func (m *Metrics) SetResourceCount(provider string, state provision.State, count float64) {
	if m.resourcesManaged == nil {
		return
	}
	m.resourcesManaged.WithLabelValues(provider, string(state)).Set(count)
}

// Alert Metrics

// SetOpenAlerts sets the open alert count for a kind and service.
func (m *Metrics) SetOpenAlerts(kind provision.AlertKind, service string, count float64) {
	if m.openAlerts == nil {
		return
	}
	m.openAlerts.WithLabelValues(string(kind), service).Set(count)
}

// Sync Metrics

// RecordSync records a completed or failed sync pass.
func (m *Metrics) RecordSync(service, status string, duration time.Duration) {
	if m.syncsTotal == nil {
		return
	}
	m.syncsTotal.WithLabelValues(service, status).Inc()
	m.syncDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordStaleResources records vendor-side objects that disappeared.
func (m *Metrics) RecordStaleResources(service string, count int) {
	if m.staleMarked == nil {
		return
	}
	m.staleMarked.WithLabelValues(service).Add(float64(count))
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
