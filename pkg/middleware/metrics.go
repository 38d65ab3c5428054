package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "gridwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for tick duration in seconds.
	// Default: buckets shaped around common tick rates.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the tick duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "gridwire",
		Registry:  prometheus.DefaultRegisterer,
		// Tick budgets: 33 ms at 30 Hz, 50 ms at 20 Hz.
		Buckets: []float64{.001, .0025, .005, .01, .025, .033, .05, .1, .25, 1},
	}
}

// metrics holds the Prometheus metrics for the sync engine.
type metrics struct {
	datagramsSent     prometheus.Counter
	datagramsReceived prometheus.Counter
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	datagramsDropped  prometheus.Counter
	checksumFailures  prometheus.Counter
	fragmentsResent   prometheus.Counter
	reliablePayloads  prometheus.Counter
	reliableBytes     prometheus.Histogram
	activeConnections prometheus.Gauge
	snapshotsCaptured prometheus.Counter
	snapshotEntities  prometheus.Histogram
	entityFrames      prometheus.Counter
	tickDuration      prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// globalMetrics is the singleton metrics instance, created on the first
// call to Prometheus(). Record* helpers are no-ops until then.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

// initMetrics initializes the Prometheus metrics.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &metrics{
		datagramsSent:     counter("datagrams_sent_total", "Datagrams written to the network"),
		datagramsReceived: counter("datagrams_received_total", "Valid datagrams received"),
		bytesSent:         counter("bytes_sent_total", "Datagram bytes written to the network"),
		bytesReceived:     counter("bytes_received_total", "Valid datagram bytes received"),
		datagramsDropped:  counter("datagrams_dropped_total", "Inbound datagrams dropped by full queues"),
		checksumFailures:  counter("checksum_failures_total", "Datagrams rejected by checksum"),
		fragmentsResent:   counter("fragments_resent_total", "Reliable fragments resent"),
		reliablePayloads:  counter("reliable_payloads_total", "Reliable payloads fully reassembled"),

		reliableBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reliable_payload_bytes",
			Help:        "Size of reassembled reliable payloads in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{256, 1000, 2000, 5000, 20000, 100000, 1000000},
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_connections",
			Help:        "Connections currently tracked by the server",
			ConstLabels: config.ConstLabels,
		}),

		snapshotsCaptured: counter("snapshots_captured_total", "World snapshots captured"),

		snapshotEntities: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "snapshot_entities",
			Help:        "Entity slots per captured snapshot",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{16, 64, 256, 1024, 4096, 16384},
		}),

		entityFrames: counter("entity_frames_total", "Entity frame packets sent to clients"),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tick_duration_seconds",
			Help:        "Simulation tick duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Debug endpoint requests",
			ConstLabels: config.ConstLabels,
		}, []string{"path", "method"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "Debug endpoint request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// Prometheus initializes the global metrics and returns an HTTP
// middleware for the debug server.
//
// Metrics collected:
//   - gridwire_datagrams_sent_total / received_total (+ byte counters)
//   - gridwire_datagrams_dropped_total: queue-full drops
//   - gridwire_checksum_failures_total: rejected datagrams
//   - gridwire_fragments_resent_total: reliable delivery retries
//   - gridwire_reliable_payloads_total: completed reassemblies
//   - gridwire_active_connections: currently tracked connections
//   - gridwire_snapshots_captured_total / snapshot_entities
//   - gridwire_entity_frames_total: delta packets sent
//   - gridwire_tick_duration_seconds: simulation tick time
//   - gridwire_http_requests_total / http_request_duration_seconds
//
// The transport and server record into these through the Record* helpers;
// until Prometheus() runs, the helpers are no-ops.
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			m.httpRequests.WithLabelValues(r.URL.Path, r.Method).Inc()
			m.httpDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RecordDatagramSent records one datagram written to the network.
func RecordDatagramSent(bytes int) {
	if globalMetrics != nil {
		globalMetrics.datagramsSent.Inc()
		globalMetrics.bytesSent.Add(float64(bytes))
	}
}

// RecordDatagramReceived records one validated inbound datagram.
func RecordDatagramReceived(bytes int) {
	if globalMetrics != nil {
		globalMetrics.datagramsReceived.Inc()
		globalMetrics.bytesReceived.Add(float64(bytes))
	}
}

// RecordDatagramDropped records an inbound datagram dropped by a full
// queue.
func RecordDatagramDropped() {
	if globalMetrics != nil {
		globalMetrics.datagramsDropped.Inc()
	}
}

// RecordChecksumFailure records a datagram rejected by checksum.
func RecordChecksumFailure() {
	if globalMetrics != nil {
		globalMetrics.checksumFailures.Inc()
	}
}

// RecordFragmentsResent records a resend burst of count fragments.
func RecordFragmentsResent(count int) {
	if globalMetrics != nil {
		globalMetrics.fragmentsResent.Add(float64(count))
	}
}

// RecordReliablePayload records a fully reassembled reliable payload.
func RecordReliablePayload(bytes int) {
	if globalMetrics != nil {
		globalMetrics.reliablePayloads.Inc()
		globalMetrics.reliableBytes.Observe(float64(bytes))
	}
}

// RecordConnectionOpened records a connection entering tracking.
func RecordConnectionOpened() {
	if globalMetrics != nil {
		globalMetrics.activeConnections.Inc()
	}
}

// RecordConnectionClosed records a connection leaving tracking.
func RecordConnectionClosed() {
	if globalMetrics != nil {
		globalMetrics.activeConnections.Dec()
	}
}

// RecordSnapshotCaptured records one captured snapshot and its entity
// slot count.
func RecordSnapshotCaptured(entities int) {
	if globalMetrics != nil {
		globalMetrics.snapshotsCaptured.Inc()
		globalMetrics.snapshotEntities.Observe(float64(entities))
	}
}

// RecordEntityFrames records delta packets sent to one client.
func RecordEntityFrames(count int) {
	if globalMetrics != nil {
		globalMetrics.entityFrames.Add(float64(count))
	}
}

// RecordTickDuration records one simulation tick.
func RecordTickDuration(d time.Duration) {
	if globalMetrics != nil {
		globalMetrics.tickDuration.Observe(d.Seconds())
	}
}
