// Package metrics exposes Prometheus counters for HTTP traffic, exam
// generation and scores.
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

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Generations     *prometheus.CounterVec
	GenerationTime  *prometheus.HistogramVec
	Scores          *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method", "endpoint"},
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_generations_total",
				Help: "Exam generation calls by level and result",
			},
			[]string{"level", "result"},
		),
		GenerationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exam_generation_duration_seconds",
				Help:    "Duration of exam generation calls",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"level"},
		),
		Scores: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exam_scores_percent",
				Help:    "Final scores of completed exams",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
			[]string{"level"},
		),
	}
	m.Registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.Generations,
		m.GenerationTime,
		m.Scores,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveGeneration records one generation call. result is "ok" or an error kind.
func (m *Metrics) ObserveGeneration(level, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(level, result).Inc()
	m.GenerationTime.WithLabelValues(level).Observe(d.Seconds())
}

// ObserveScore records the final score of a completed exam.
func (m *Metrics) ObserveScore(level string, score int) {
	if m == nil {
		return
	}
	m.Scores.WithLabelValues(level).Observe(float64(score))
}

// Middleware counts requests by route pattern and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
