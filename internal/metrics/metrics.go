// Package metrics exposes Prometheus metrics for the event store and web server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Joseda-hg/lazycal/internal/model"
)

// Manager owns the lazycal collectors. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	storeOps       *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	storeWatchers  prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	icsEventsTotal *prometheus.CounterVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom histogram buckets for latency metrics.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets the registry collectors are registered on.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lazycal",
		histogramBuckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)
	m.storeOps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Event store operations by operation and result",
	}, []string{"op", "result"})
	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Event store operation latency",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})
	m.storeWatchers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "watchers",
		Help:      "Active change subscriptions on the event store",
	})
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "code"})
	m.icsEventsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ics",
		Name:      "events_total",
		Help:      "Events moved through iCalendar import and export",
	}, []string{"direction"})

	return m
}

// ObserveStoreOp records one store call that started at start.
func (m *Manager) ObserveStoreOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op, resultLabel(err)).Inc()
	m.storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Manager) WatcherAdded() {
	if m == nil {
		return
	}
	m.storeWatchers.Inc()
}

func (m *Manager) WatcherRemoved() {
	if m == nil {
		return
	}
	m.storeWatchers.Dec()
}

func (m *Manager) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveICS counts events imported or exported; direction is "import" or "export".
func (m *Manager) ObserveICS(direction string, count int) {
	if m == nil {
		return
	}
	m.icsEventsTotal.WithLabelValues(direction).Add(float64(count))
}

func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "unavailable"
	default:
		var validation *model.ValidationError
		if errors.As(err, &validation) {
			return "invalid"
		}
		return "error"
	}
}
