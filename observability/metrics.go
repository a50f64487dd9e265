package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a datagram gets no reply.
const (
	DropDecode    = "decode"
	DropRateLimit = "rate_limit"
)

// Metrics holds the Prometheus collectors for the UDP server.
type Metrics struct {
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec // labels: reason={decode,rate_limit}
	Requests          *prometheus.CounterVec // labels: type, status
	SendErrors        prometheus.Counter
	HandleDuration    prometheus.Histogram
	ServerRunning     prometheus.Gauge
}

// NewMetrics creates and registers all server metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DatagramsReceived,
		m.DatagramsDropped,
		m.Requests,
		m.SendErrors,
		m.HandleDuration,
		m.ServerRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_udp",
			Name:      "datagrams_received_total",
			Help:      "Total datagrams read from the socket.",
		}),
		DatagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_udp",
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams that received no reply, by reason.",
		}, []string{"reason"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_udp",
			Name:      "requests_total",
			Help:      "Answered requests by metric type and response status.",
		}, []string{"type", "status"}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weather_udp",
			Name:      "send_errors_total",
			Help:      "Responses that could not be written to the socket.",
		}),
		HandleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_udp",
			Name:      "handle_duration_seconds",
			Help:      "Time spent answering one request, reverse lookup excluded.",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),
		ServerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_udp",
			Name:      "server_running",
			Help:      "1 while the UDP loop is serving, 0 otherwise.",
		}),
	}
}
