// Package metrics exposes dispatch and hook counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

// Metrics holds the daemon's collectors on a private registry, so several
// instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	RelayFailures    prometheus.Counter
	HooksAttached    *prometheus.GaugeVec

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kpmd_dispatch_total",
				Help: "Dispatched commands by command and result errno",
			},
			[]string{"command", "errno"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kpmd_dispatch_duration_seconds",
				Help:    "Dispatch latency including the hook call",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"command"},
		),
		RelayFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kpmd_dispatch_result_relay_failures_total",
				Help: "Dispatches whose result could not be copied back to the caller",
			},
		),
		HooksAttached: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kpmd_hook_attached",
				Help: "1 when the hook slot is bound to a backend, 0 for the default stub",
			},
			[]string{"hook"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kpmd_http_requests_total",
				Help: "HTTP requests by method, route pattern and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kpmd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveDispatch makes Metrics a kpm.Observer.
func (m *Metrics) ObserveDispatch(r kpm.Record) {
	m.DispatchTotal.WithLabelValues(r.Command, r.Errno).Inc()
	m.DispatchDuration.WithLabelValues(r.Command).Observe(r.Duration.Seconds())
	if r.RelayError != "" {
		m.RelayFailures.Inc()
	}
}

// HookChanged tracks slot bindings; it matches hook.Registry.OnChange.
func (m *Metrics) HookChanged(st hook.SlotStatus) {
	v := 0.0
	if st.Attached {
		v = 1
	}
	m.HooksAttached.WithLabelValues(st.Name).Set(v)
}

// SeedHooks initialises the attached gauge from a registry snapshot.
func (m *Metrics) SeedHooks(status []hook.SlotStatus) {
	for _, st := range status {
		m.HookChanged(st)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
