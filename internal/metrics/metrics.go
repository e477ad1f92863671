package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the action server
type Metrics struct {
	registry *prometheus.Registry

	// Action metrics
	ActionCount    *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// Registry metrics
	RegistryReloadsTotal *prometheus.CounterVec
	RegisteredActions    prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ActionCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "action_count",
				Help: "Action Count",
			},
			[]string{"action_name"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "action_duration_seconds",
				Help:    "Duration of action runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action_name", "outcome"},
		),

		RegistryReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_reloads_total",
				Help: "Total number of action registry reloads",
			},
			[]string{"status"},
		),
		RegisteredActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "registered_actions",
				Help: "Number of actions in the active registry",
			},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m.registry.MustRegister(m.ActionCount)
	m.registry.MustRegister(m.ActionDuration)

	m.registry.MustRegister(m.RegistryReloadsTotal)
	m.registry.MustRegister(m.RegisteredActions)

	m.registry.MustRegister(m.RequestsTotal)
	m.registry.MustRegister(m.RequestDuration)
}

// IncAction counts one dispatch attempt for the named action.
func (m *Metrics) IncAction(name string) {
	m.ActionCount.WithLabelValues(name).Inc()
}

// ObserveAction records how long an action run took and how it ended.
func (m *Metrics) ObserveAction(name, outcome string, d time.Duration) {
	m.ActionDuration.WithLabelValues(name, outcome).Observe(d.Seconds())
}

// ObserveReload records a registry rebuild.
func (m *Metrics) ObserveReload(actions int, err error) {
	if err != nil {
		m.RegistryReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RegistryReloadsTotal.WithLabelValues("success").Inc()
	m.RegisteredActions.Set(float64(actions))
}

// Middleware records request count and latency per route pattern. Paths
// that match no route are grouped under "unmatched".
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					endpoint = pattern
				}
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
