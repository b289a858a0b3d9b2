package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/resilience"
)

const namespace = "arcadia"

// Metrics holds all Prometheus collectors. Each instance owns its registry so
// several hosts (or tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics (authority)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Window metrics
	LiveSurfaces      prometheus.Gauge
	WindowTransitions *prometheus.CounterVec
	SurfaceFailures   *prometheus.CounterVec

	// Bridge metrics
	BridgeMessages *prometheus.CounterVec
	BridgeDropped  *prometheus.CounterVec

	// Sync metrics
	SyncFlushes    *prometheus.CounterVec
	SyncQueueDepth prometheus.Gauge

	// Remote metrics
	RemoteCalls    *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec
	BreakerState   *prometheus.GaugeVec
}

// NewMetrics creates a collector set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		}, []string{"method", "path", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path"}),

		LiveSurfaces: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_live_surfaces",
			Help:      "Number of instantiated content surfaces",
		}),
		WindowTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_transitions_total",
			Help:      "Role transitions applied by the lifecycle supervisor",
		}, []string{"role"}),
		SurfaceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_failures_total",
			Help:      "Surface load failures by outcome",
		}, []string{"outcome"}),

		BridgeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_messages_total",
			Help:      "Messages crossing the host-sandbox bridge",
		}, []string{"direction", "action"}),
		BridgeDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_dropped_total",
			Help:      "Messages dropped at the bridge",
		}, []string{"reason"}),

		SyncFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_flushes_total",
			Help:      "Sync queue flush attempts by outcome",
		}, []string{"outcome"}),
		SyncQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Pending progress mutations",
		}),

		RemoteCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Calls to the remote authority",
		}, []string{"endpoint", "status"}),
		RemoteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote authority call duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves this instance's metrics in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRemoteCall records one call to the authority.
func (m *Metrics) RecordRemoteCall(endpoint, status string, duration time.Duration) {
	m.RemoteCalls.WithLabelValues(endpoint, status).Inc()
	m.RemoteDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordTransition counts a card entering role.
func (m *Metrics) RecordTransition(role string) {
	m.WindowTransitions.WithLabelValues(role).Inc()
}

// RecordSurfaceFailure counts a surface fault by outcome ("retry", "error").
func (m *Metrics) RecordSurfaceFailure(outcome string) {
	m.SurfaceFailures.WithLabelValues(outcome).Inc()
}

// SetLiveSurfaces sets the number of instantiated surfaces.
func (m *Metrics) SetLiveSurfaces(n int) {
	m.LiveSurfaces.Set(float64(n))
}

// RecordInbound counts a decoded surface message.
func (m *Metrics) RecordInbound(action string) {
	m.BridgeMessages.WithLabelValues("in", action).Inc()
}

// RecordOutbound counts a host command.
func (m *Metrics) RecordOutbound(action string) {
	m.BridgeMessages.WithLabelValues("out", action).Inc()
}

// RecordDropped counts a dropped bridge message.
func (m *Metrics) RecordDropped(reason string) {
	m.BridgeDropped.WithLabelValues(reason).Inc()
}

// RecordFlush counts a flush attempt by outcome.
func (m *Metrics) RecordFlush(outcome string) {
	m.SyncFlushes.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the number of pending mutations.
func (m *Metrics) SetQueueDepth(n int) {
	m.SyncQueueDepth.Set(float64(n))
}

// ObserveBreaker returns a state change hook for resilience.Settings.
func (m *Metrics) ObserveBreaker() func(name string, from, to resilience.State) {
	return func(name string, _, to resilience.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
	}
}
