package signalr

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors of a connection.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "signalr").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the collectors.  A nil *Metrics records nothing.
type Metrics struct {
	invocations       *prometheus.CounterVec
	invocationErrors  *prometheus.CounterVec
	closes            *prometheus.CounterVec
	framesReceived    prometheus.Counter
	framesSent        prometheus.Counter
	handshakeDuration prometheus.Histogram
	openStreams       prometheus.Gauge
}

// NewMetrics creates and registers the connection collectors.  Share one instance between
// connections registered against the same registry.
//
// Metrics collected:
//   - signalr_client_invocations_total: outbound calls by kind (invoke, send, stream)
//   - signalr_client_invocation_errors_total: failed calls by error type
//   - signalr_client_closes_total: connection teardowns by reason
//   - signalr_client_frames_received_total / frames_sent_total
//   - signalr_client_handshake_duration_seconds
//   - signalr_client_open_streams
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "signalr",
		Subsystem: "client",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "invocations_total",
			Help:        "Total number of hub method calls issued",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		invocationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "invocation_errors_total",
			Help:        "Total number of hub method calls that failed",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "closes_total",
			Help:        "Total number of connection teardowns by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_received_total",
			Help:        "Total number of transport frames received",
			ConstLabels: config.ConstLabels,
		}),

		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_sent_total",
			Help:        "Total number of transport frames sent",
			ConstLabels: config.ConstLabels,
		}),

		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handshake_duration_seconds",
			Help:        "Time from transport open to handshake response",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.DefBuckets,
		}),

		openStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "open_streams",
			Help:        "Number of server streams currently open",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) invoked(kind string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(kind).Inc()
}

func (m *Metrics) failed(err error) {
	if m == nil || err == nil {
		return
	}
	m.invocationErrors.WithLabelValues(errorType(err)).Inc()
}

func (m *Metrics) closed(cause error) {
	if m == nil {
		return
	}
	reason := "clean"
	if cause != nil {
		reason = errorType(cause)
	}
	m.closes.WithLabelValues(reason).Inc()
}

func (m *Metrics) received() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) sent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

func (m *Metrics) handshake(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakeDuration.Observe(d.Seconds())
}

func (m *Metrics) streamOpened() {
	if m == nil {
		return
	}
	m.openStreams.Inc()
}

func (m *Metrics) streamClosed() {
	if m == nil {
		return
	}
	m.openStreams.Dec()
}

// errorType label value for err.
func errorType(err error) string {
	var (
		handshake *HandshakeError
		transport *TransportError
		closed    *ConnectionClosedError
		violation *ProtocolViolationError
		timeout   TimeoutError
		server    ServerInvocationError
		serverEnd ServerCloseError
	)

	switch {
	case errors.As(err, &violation):
		return "protocol_violation"
	case errors.As(err, &server):
		return "server"
	case errors.As(err, &closed):
		return "connection_closed"
	case errors.As(err, &handshake):
		return "handshake"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &serverEnd):
		return "server_close"
	}
	return "other"
}
