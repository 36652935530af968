// Package metrics exposes Prometheus collectors for the API and the
// generation pipeline. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orbitstudio"

// Collector holds every metric the service reports.
type Collector struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	generationsStarted *prometheus.CounterVec
	generationsDone    *prometheus.CounterVec
	pollQueries        prometheus.Counter
	pollAttempts       prometheus.Histogram
	activeSurfaces     prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		generationsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_started_total",
			Help:      "Generations handed to a poller",
		}, []string{"source"}),
		generationsDone: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_finished_total",
			Help:      "Generations that reached a terminal state",
		}, []string{"status"}),
		pollQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_queries_pending_total",
			Help:      "Status queries answered with a not-done operation",
		}),
		pollAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_attempts",
			Help:      "Status queries made per finished generation",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 30},
		}),
		activeSurfaces: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_surfaces",
			Help:      "Surfaces with a running poller",
		}),
	}
}

// Registry returns the registry backing c.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
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
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// GenerationStarted counts a poller start; source is "new" or "resumed".
func (c *Collector) GenerationStarted(source string) {
	if c == nil {
		return
	}
	c.generationsStarted.WithLabelValues(source).Inc()
	c.activeSurfaces.Inc()
}

// PollPending counts a not-done answer.
func (c *Collector) PollPending() {
	if c == nil {
		return
	}
	c.pollQueries.Inc()
}

// GenerationFinished records the terminal status and how many queries it took.
func (c *Collector) GenerationFinished(status string, attempts int) {
	if c == nil {
		return
	}
	c.generationsDone.WithLabelValues(status).Inc()
	if attempts > 0 {
		c.pollAttempts.Observe(float64(attempts))
	}
}

// SurfaceReleased decrements the active surface gauge.
func (c *Collector) SurfaceReleased() {
	if c == nil {
		return
	}
	c.activeSurfaces.Dec()
}
