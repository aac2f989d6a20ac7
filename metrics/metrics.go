// Package metrics provides Prometheus metrics for the simulation service.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the duration histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// Recorder owns every metric the service exports.
type Recorder struct {
	namespace string
	buckets   []float64

	outcomes         *prometheus.CounterVec
	plateAppearances prometheus.Counter
	runs             *prometheus.CounterVec
	activeRuns       prometheus.Gauge
	runDuration      prometheus.Histogram

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers the service metrics on reg.
func New(reg prometheus.Registerer, opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "sim_engine",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(reg)

	r.outcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "outcomes_total",
		Help:      "Plate appearance outcomes resolved, by outcome",
	}, []string{"outcome"})

	r.plateAppearances = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "plate_appearances_total",
		Help:      "Total plate appearances resolved",
	})

	r.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "runs_total",
		Help:      "Simulation runs finished, by final status",
	}, []string{"status"})

	r.activeRuns = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      "active_runs",
		Help:      "Simulation runs currently executing",
	})

	r.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of simulation runs",
		Buckets:   r.buckets,
	})

	r.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"method", "route", "code"})

	r.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   r.buckets,
	}, []string{"route"})

	return r
}

// AddOutcomes counts n resolutions of outcome
func (r *Recorder) AddOutcomes(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.outcomes.WithLabelValues(outcome).Add(float64(n))
	r.plateAppearances.Add(float64(n))
}

// RunStarted marks a run as executing
func (r *Recorder) RunStarted() {
	if r == nil {
		return
	}
	r.activeRuns.Inc()
}

// RunFinished records the end of a run that was marked with RunStarted
func (r *Recorder) RunFinished(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.activeRuns.Dec()
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request
func (r *Recorder) ObserveHTTP(method, route, code string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, code).Inc()
	r.httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus exposition format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
