// Package metric provides Prometheus metrics for SockMesh.
package metric

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
)

const namespace = "sockmesh"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	DisconnectsTotal *prometheus.CounterVec

	// Event metrics
	EventsReceived *prometheus.CounterVec
	EventsEmitted  *prometheus.CounterVec
	AcksPending    prometheus.Gauge
	AckLatency     prometheus.Histogram

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewRegistry creates a registry with Go and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of accepted sessions.",
		}),
		DisconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Total number of disconnected sessions by reason.",
		}, []string{"reason"}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of inbound events by name.",
		}, []string{"event"}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Total number of outbound events by name.",
		}, []string{"event"}),
		AcksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "acks_pending",
			Help:      "Number of emitted events awaiting acknowledgement.",
		}),
		AckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ack_latency_seconds",
			Help:      "Time between emitting an event and receiving its acknowledgement.",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		r.SessionsActive,
		r.SessionsTotal,
		r.DisconnectsTotal,
		r.EventsReceived,
		r.EventsEmitted,
		r.AcksPending,
		r.AckLatency,
		r.HTTPRequests,
	)
	return r
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns an HTTP handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SessionOpened records an accepted session.
func (r *Registry) SessionOpened() {
	r.SessionsActive.Inc()
	r.SessionsTotal.Inc()
}

// SessionClosed records a session leaving the registry.
func (r *Registry) SessionClosed(reason domain.Reason) {
	r.SessionsActive.Dec()
	r.DisconnectsTotal.WithLabelValues(string(reason)).Inc()
}

// EventReceived records an inbound event.
func (r *Registry) EventReceived(event string) {
	r.EventsReceived.WithLabelValues(event).Inc()
}

// EventEmitted records an outbound event.
func (r *Registry) EventEmitted(event string) {
	r.EventsEmitted.WithLabelValues(event).Inc()
}

// AckPending adjusts the pending acknowledgement gauge.
func (r *Registry) AckPending(delta int) {
	r.AcksPending.Add(float64(delta))
}

// AckObserved records an acknowledgement round trip.
func (r *Registry) AckObserved(latency time.Duration) {
	r.AckLatency.Observe(latency.Seconds())
}

// ObserveHTTPRequest records a served HTTP request.
func (r *Registry) ObserveHTTPRequest(method string, code int) {
	r.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
