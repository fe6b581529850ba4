// Package metrics exposes Prometheus counters for HTTP traffic and for the
// outcome of credential and token checks.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for AuthAttempts.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	AuthAttempts  *prometheus.CounterVec
	TokenVerdicts *prometheus.CounterVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "athlia_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "athlia_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "athlia_auth_attempts_total",
				Help: "Credential operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		TokenVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "athlia_token_verdicts_total",
				Help: "Bearer and refresh token checks by verdict",
			},
			[]string{"verdict"},
		),
	}
	reg.MustRegister(m.HTTPRequests, m.HTTPDuration, m.AuthAttempts, m.TokenVerdicts)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAuth counts one register/login/refresh/password attempt.
func (m *Metrics) RecordAuth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordTokenVerdict counts one token check.
func (m *Metrics) RecordTokenVerdict(valid bool) {
	if m == nil {
		return
	}
	verdict := "invalid"
	if valid {
		verdict = "valid"
	}
	m.TokenVerdicts.WithLabelValues(verdict).Inc()
}

// Middleware records request count and latency keyed by the route template
// (c.Path()), never by the raw URL, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
