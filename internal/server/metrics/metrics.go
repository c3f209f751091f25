// Package metrics exposes the server's Prometheus metrics. A nil *Metrics is
// valid and records nothing, so components can run without a registry.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	logins      *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the itemshare collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "itemshare_transitions_total",
				Help: "Lifecycle operations by event and result",
			},
			[]string{"event", "result"},
		),
		logins: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "itemshare_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"}, // "ok", "failed", "throttled"
		),
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "itemshare_http_requests_total",
				Help: "HTTP requests by method, route pattern and status code",
			},
			[]string{"method", "route", "status"},
		),
		latency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "itemshare_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route pattern",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Result labels used by RecordTransition.
const (
	ResultOK          = "ok"
	ResultConflict    = "conflict"
	ResultUnavailable = "unavailable"
	ResultInvalid     = "invalid"
	ResultDenied      = "denied"
	ResultNotFound    = "not_found"
	ResultError       = "error"
)

// ResultOf maps the outcome of an operation to its result label.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, common.ErrVersionConflict):
		return ResultConflict
	case errors.Is(err, common.ErrItemUnavailable):
		return ResultUnavailable
	case errors.Is(err, common.ErrInvalidTransition):
		return ResultInvalid
	case errors.Is(err, common.ErrAuthorizationDenied):
		return ResultDenied
	case errors.Is(err, common.ErrNotFound):
		return ResultNotFound
	}
	return ResultError
}

// RecordTransition counts one lifecycle operation for event with the result
// derived from err.
func (m *Metrics) RecordTransition(event string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, ResultOf(err)).Inc()
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// RecordRequest counts one served HTTP request. route is the matched pattern,
// not the raw path, to keep cardinality bounded.
func (m *Metrics) RecordRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
