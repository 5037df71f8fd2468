package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsNamespace prefixes every exported series.
const MetricsNamespace = "datasync"

// Metrics holds the prometheus collectors for one service instance.
type Metrics struct {
	registry *prometheus.Registry

	SyncOperations     *prometheus.CounterVec
	SyncDuration       *prometheus.HistogramVec
	AutoSyncTicks      *prometheus.CounterVec
	SnapshotAvailable  prometheus.Gauge
	CredentialRestores *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SyncOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Total sync operations by outcome",
				Namespace: MetricsNamespace,
				Name:      "sync_operations_total",
			},
			// operation: push, pull, force-push, force-pull, undo
			// result: success or an error kind
			[]string{"operation", "result"},
		),
		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Help:      "Distribution of sync operation durations",
				Namespace: MetricsNamespace,
				Name:      "sync_duration_seconds",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"operation"},
		),
		AutoSyncTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Total auto-sync ticks by outcome",
				Namespace: MetricsNamespace,
				Name:      "autosync_ticks_total",
			},
			[]string{"result"},
		),
		SnapshotAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Help:      "1 when an undo snapshot is held",
				Namespace: MetricsNamespace,
				Name:      "snapshot_available",
			},
		),
		CredentialRestores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Remote URL restorations after credential injection",
				Namespace: MetricsNamespace,
				Name:      "credential_restores_total",
			},
			// result: success, error
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Total HTTP requests by route and status code",
				Namespace: MetricsNamespace,
				Name:      "http_requests_total",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Help:      "Distribution of HTTP request durations",
				Namespace: MetricsNamespace,
				Name:      "http_request_duration_seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.registry.MustRegister(
		m.SyncOperations,
		m.SyncDuration,
		m.AutoSyncTicks,
		m.SnapshotAvailable,
		m.CredentialRestores,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync records one finished sync operation. A nil receiver is a no-op
// so components can run without metrics in tests.
func (m *Metrics) ObserveSync(operation, result string, started time.Time) {
	if m == nil {
		return
	}
	m.SyncOperations.WithLabelValues(operation, result).Inc()
	m.SyncDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveTick records one auto-sync tick.
func (m *Metrics) ObserveTick(result string) {
	if m == nil {
		return
	}
	m.AutoSyncTicks.WithLabelValues(result).Inc()
}

// SetSnapshotAvailable mirrors the snapshot manager's state.
func (m *Metrics) SetSnapshotAvailable(available bool) {
	if m == nil {
		return
	}
	if available {
		m.SnapshotAvailable.Set(1)
		return
	}
	m.SnapshotAvailable.Set(0)
}

// ObserveCredentialRestore records a remote URL restoration.
func (m *Metrics) ObserveCredentialRestore(err error) {
	if m == nil {
		return
	}
	m.CredentialRestores.WithLabelValues(StatusLabel(err)).Inc()
}

// StatusLabel returns a string representation of the given error appropriate for the status label
// of a Prometheus metric.
func StatusLabel(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}
