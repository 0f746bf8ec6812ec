// Package metrics provides Prometheus metrics for the HTTP surface and for
// outbound upstream calls.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "relay"

var latencyBuckets = []float64{0.1, 0.3, 0.5, 0.7, 1.0, 3.0, 5.0, 10.0, 30.0, 60.0}

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPResponsesCounter     *prometheus.CounterVec
	HTTPDurationHistogram    prometheus.Histogram

	UpstreamRequestsCounter   *prometheus.CounterVec
	UpstreamDurationHistogram *prometheus.HistogramVec

	server *http.Server
	log    logger.Logger
}

// NewMetrics creates the collectors. Upstream metrics are always registered;
// HTTP metrics only when httpCounters is set.
func NewMetrics(httpCounters bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}

	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.HTTPResponsesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "http_responses_total",
			Help:      "HTTP responses returned, by status code",
		}, []string{"code"})
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   latencyBuckets,
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPResponsesCounter, m.HTTPDurationHistogram)
	}

	m.UpstreamRequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "upstream_requests_total",
		Help:      "Outbound upstream calls, by target and outcome",
	}, []string{"target", "outcome"})
	m.UpstreamDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "upstream_request_duration_seconds",
		Help:      "Outbound upstream call duration in seconds",
		Buckets:   latencyBuckets,
	}, []string{"target"})
	m.reg.MustRegister(m.UpstreamRequestsCounter, m.UpstreamDurationHistogram)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// AddCustomMetric registers an additional collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveUpstream records one outbound call.
func (m *Metrics) ObserveUpstream(target, outcome string, d time.Duration) {
	m.UpstreamRequestsCounter.WithLabelValues(target, outcome).Inc()
	m.UpstreamDurationHistogram.WithLabelValues(target).Observe(d.Seconds())
}

// IncrementHTTPResponseCounter counts a response with the given status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	if m.HTTPResponsesCounter == nil {
		return
	}
	m.HTTPResponsesCounter.WithLabelValues(strconv.Itoa(code)).Inc()
}

// HTTPMiddleware returns a chi-compatible middleware that tracks HTTP
// metrics. It is a pass-through when HTTP metrics are disabled.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m.TotalHTTPRequestsCounter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(status)
		})
	}
}

// Listen serves /metrics on port in the background. Serve errors other than
// a clean shutdown are delivered on the returned channel.
func (m *Metrics) Listen(port int) chan error {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics listener: %w", err)
		}
	}()
	return errChan
}

// Shutdown stops the metrics listener started by Listen.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.log.Info("Stopping metrics listener")
	return m.server.Shutdown(ctx)
}
