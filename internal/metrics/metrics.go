// Package metrics holds the Prometheus collectors for the HTTP layer and the solver.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Round outcomes.
const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	OutcomeUnknown   = "unknown"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RoundsTotal     *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec
	ChainsActive    prometheus.Gauge
	ChainsTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizsolver_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_rounds_total",
				Help: "Quiz rounds by outcome",
			},
			[]string{"outcome"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizsolver_phase_duration_seconds",
				Help:    "Duration of round phases",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),
		ChainsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quizsolver_chains_active",
			Help: "Chains currently running in the background",
		}),
		ChainsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizsolver_chains_total",
				Help: "Finished chains by result",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.RequestCounter, m.RequestDuration, m.RoundsTotal, m.PhaseDuration, m.ChainsActive, m.ChainsTotal)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveRound(outcome string) {
	if m == nil {
		return
	}
	m.RoundsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) ChainStarted() {
	if m == nil {
		return
	}
	m.ChainsActive.Inc()
}

func (m *Metrics) ChainFinished(result string) {
	if m == nil {
		return
	}
	m.ChainsActive.Dec()
	m.ChainsTotal.WithLabelValues(result).Inc()
}
