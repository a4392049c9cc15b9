package console

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitalvas/apiconsole/sockets"
)

const metricsNamespace = "apiconsole"

// metrics holds the console collectors. Each console owns its registry so
// that several instances, as in tests, never collide.
type metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	tryitRequests  *prometheus.CounterVec
	socketMessages *prometheus.CounterVec
}

func newMetrics(connections func() int) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of console API requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "Console API request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		tryitRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tryit_requests_total",
				Help:      "Total number of executed try-it requests. Status 0 is a network error.",
			},
			[]string{"method", "status"},
		),
		socketMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "socket_messages_total",
				Help:      "Total number of socket history messages by type.",
			},
			[]string{"type"},
		),
	}

	open := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "socket_connections",
			Help:      "Number of registered socket namespaces.",
		},
		func() float64 { return float64(connections()) },
	)

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.tryitRequests,
		m.socketMessages,
		open,
	)

	return m
}

func (m *metrics) observeHTTP(r *http.Request, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(r.Method, route).Observe(d.Seconds())
}

func (m *metrics) observeTryIt(method string, status int) {
	m.tryitRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *metrics) observeMessage(_ string, msg sockets.Message) {
	m.socketMessages.WithLabelValues(string(msg.Type)).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
