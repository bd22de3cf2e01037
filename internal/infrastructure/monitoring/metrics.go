package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so components can be built without a registry.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Download pipeline
	DownloadsTotal   *prometheus.CounterVec
	DownloadDuration prometheus.Histogram
	AssetRetries     prometheus.Counter
	BytesDownloaded  prometheus.Counter
	DownloadsWaiting prometheus.Counter

	// Cache verifier
	CacheLookups *prometheus.CounterVec

	// Permission engine
	Reconciliations *prometheus.CounterVec

	// Loader
	Loads       *prometheus.CounterVec
	GCCollected *prometheus.CounterVec

	// Bridge
	BridgeRequests *prometheus.CounterVec
	BridgeDuration *prometheus.HistogramVec
	WSConnections  prometheus.Gauge

	// Resilience
	BreakerState *prometheus.GaugeVec
}

// NewMetrics registers every collector on reg. A nil reg uses a private
// registry, which keeps repeated construction in tests from panicking.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miniapp_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "miniapp_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		DownloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miniapp_downloads_total",
				Help: "Bundle ensureReady outcomes",
			},
			[]string{"outcome"},
		),
		DownloadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "miniapp_download_duration_seconds",
				Help:    "Duration of full bundle downloads",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		AssetRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miniapp_asset_retries_total",
				Help: "Asset fetch retries after transient server errors",
			},
		),
		BytesDownloaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miniapp_asset_bytes_total",
				Help: "Bytes written by asset transfers",
			},
		),
		DownloadsWaiting: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "miniapp_download_joins_total",
				Help: "ensureReady calls that joined an in-flight download",
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miniapp_cache_lookups_total",
				Help: "Cache verification results",
			},
			[]string{"result"},
		),

		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miniapp_permission_reconciliations_total",
				Help: "Permission reconciliation outcomes",
			},
			[]string{"outcome"},
		),

		Loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miniapp_loads_total",
				Help: "Bundle load outcomes",
			},
			[]string{"outcome"},
		),
		GCCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miniapp_gc_collected_total",
				Help: "Entries removed by garbage collection",
			},
			[]string{"kind"},
		),

		BridgeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miniapp_bridge_requests_total",
				Help: "Bridge requests by action and response status",
			},
			[]string{"action", "status"},
		),
		BridgeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "miniapp_bridge_duration_seconds",
				Help:    "Bridge round trip duration",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"action"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "miniapp_ws_connections",
				Help: "Open bridge websocket connections",
			},
		),

		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "miniapp_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDownload records one ensureReady outcome ("cached", "downloaded", "failed", "cancelled")
func (m *Metrics) RecordDownload(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
	if outcome == "downloaded" {
		m.DownloadDuration.Observe(duration.Seconds())
	}
}

// IncAssetRetries counts one retried asset request
func (m *Metrics) IncAssetRetries() {
	if m == nil {
		return
	}
	m.AssetRetries.Inc()
}

// AddBytes adds transferred bytes
func (m *Metrics) AddBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesDownloaded.Add(float64(n))
}

// IncDownloadJoins counts a caller that awaited an in-flight download
func (m *Metrics) IncDownloadJoins() {
	if m == nil {
		return
	}
	m.DownloadsWaiting.Inc()
}

// RecordCacheLookup records "hit", "miss" or "mismatch"
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordReconciliation records "ready", "consent_required" or "unavailable"
func (m *Metrics) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

// RecordLoad records one loader outcome
func (m *Metrics) RecordLoad(outcome string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(outcome).Inc()
}

// AddCollected counts entries of one kind removed by garbage collection
func (m *Metrics) AddCollected(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.GCCollected.WithLabelValues(kind).Add(float64(n))
}

// RecordBridgeRequest records one answered bridge request
func (m *Metrics) RecordBridgeRequest(action, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BridgeRequests.WithLabelValues(action, status).Inc()
	m.BridgeDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// IncWSConnections increments bridge connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements bridge connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// SetBreakerState publishes a breaker state as its numeric value
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}
