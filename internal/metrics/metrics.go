// Package metrics exposes Prometheus instrumentation for the indexer and API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "trovescope"

// Metrics holds the collectors on a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	eventsHandled  *prometheus.CounterVec
	eventsSkipped  *prometheus.CounterVec
	eventsFailed   *prometheus.CounterVec
	handlerSeconds *prometheus.HistogramVec
	contractCalls  *prometheus.CounterVec
	lastBlock      prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpSeconds  *prometheus.HistogramVec
}

// New registers all collectors under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Events applied to entities, by event name.",
		}, []string{"event"}),
		eventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Logs skipped before reaching a handler, by reason.",
		}, []string{"reason"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Logs whose handler failed, by event name.",
		}, []string{"event"}),
		handlerSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent applying one event, including contract reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		contractCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_calls_total",
			Help:      "eth_call requests by method and outcome.",
		}, []string{"method", "status"}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_block",
			Help:      "Highest block whose logs were fully applied.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the query API.",
		}, []string{"route", "method", "status"}),
		httpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of query API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.eventsHandled,
		m.eventsSkipped,
		m.eventsFailed,
		m.handlerSeconds,
		m.contractCalls,
		m.lastBlock,
		m.httpRequests,
		m.httpSeconds,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventHandled(event string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.eventsHandled.WithLabelValues(event).Inc()
	m.handlerSeconds.WithLabelValues(event).Observe(elapsed.Seconds())
}

func (m *Metrics) EventSkipped(reason string) {
	if m == nil {
		return
	}
	m.eventsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventFailed(event string) {
	if m == nil {
		return
	}
	m.eventsFailed.WithLabelValues(event).Inc()
}

func (m *Metrics) ContractCall(method string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.contractCalls.WithLabelValues(method, status).Inc()
}

func (m *Metrics) SetLastBlock(block uint64) {
	if m == nil {
		return
	}
	m.lastBlock.Set(float64(block))
}

// Middleware records request counts and latency for a named route.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			m.httpSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
