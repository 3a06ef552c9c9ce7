// Package metrics provides Prometheus collectors of the SOC estimation engine.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soc"

// Metrics holds engine collectors and their registry.
// All observation methods are safe to call on nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Estimations counts estimation sessions by status
	Estimations *prometheus.CounterVec
	// EstimationDuration observes estimation session latency
	EstimationDuration prometheus.Histogram
	// Samples counts processed telemetry samples by fusion phase
	Samples *prometheus.CounterVec
	// Batches counts observation model batch calls
	Batches prometheus.Counter
	// BatchSize observes the number of windows per batch
	BatchSize prometheus.Histogram
	// ModelLatency observes observation model batch latency
	ModelLatency prometheus.Histogram
	// CacheRequests counts data cache lookups by result
	CacheRequests *prometheus.CounterVec
	// Regularizations counts covariance regularizations
	Regularizations prometheus.Counter
}

// New creates new Metrics registering Go runtime and process collectors alongside engine collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.Estimations = m.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimations_total",
		Help:      "Total number of estimation sessions",
	}, []string{"status"})

	m.EstimationDuration = m.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "estimation_duration_seconds",
		Help:      "Estimation session latency in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	m.Samples = m.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Total number of processed telemetry samples",
	}, []string{"phase"})

	m.Batches = m.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_batches_total",
		Help:      "Total number of observation model batch calls",
	})

	m.BatchSize = m.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_batch_size",
		Help:      "Number of windows per observation model batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	m.ModelLatency = m.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_batch_duration_seconds",
		Help:      "Observation model batch latency in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	m.CacheRequests = m.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Total number of data cache lookups",
	}, []string{"result"})

	m.Regularizations = m.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "covariance_regularizations_total",
		Help:      "Total number of covariance regularizations",
	})

	return m
}

// NewCounter creates and registers new counter.
func (m *Metrics) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	m.registry.MustRegister(c)
	return c
}

// NewCounterVec creates and registers new counter vector.
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewHistogram creates and registers new histogram.
func (m *Metrics) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	m.registry.MustRegister(h)
	return h
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEstimation records a finished estimation session.
func (m *Metrics) ObserveEstimation(err error, d time.Duration) {
	if m == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Estimations.WithLabelValues(status).Inc()
	m.EstimationDuration.Observe(d.Seconds())
}

// ObserveSample records a processed sample in the given phase.
func (m *Metrics) ObserveSample(phase string) {
	if m == nil {
		return
	}
	m.Samples.WithLabelValues(phase).Inc()
}

// ObserveBatch records an observation model batch call.
func (m *Metrics) ObserveBatch(size int, d time.Duration) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.BatchSize.Observe(float64(size))
	m.ModelLatency.Observe(d.Seconds())
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// ObserveRegularizations adds n covariance regularizations.
func (m *Metrics) ObserveRegularizations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Regularizations.Add(float64(n))
}

// Handler returns HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Expose starts HTTP server exposing metrics on addr.
// It returns a function which shuts the server down.
func (m *Metrics) Expose(addr string, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
