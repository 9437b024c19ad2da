package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gorged"

// Response results recorded by the pipeline and the proxy.
const (
	ResultIneligible = "ineligible"
	ResultUnmatched  = "unmatched"
	ResultRewritten  = "rewritten"
	ResultError      = "error"
	ResultPaused     = "paused"
	ResultFallback   = "fallback"
	ResultOversize   = "oversize"
)

// Recorder tracks pipeline activity.
//
// Metrics:
//   - gorged_responses_total: responses seen, by result
//   - gorged_interceptor_runs_total: interceptor executions, by interceptor and outcome
//   - gorged_rewrite_duration_seconds: parse + mutate + serialize time of rewritten responses
//   - gorged_transport_errors_total: delegation socket failures, by operation
//
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	responsesTotal  *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	rewriteDuration prometheus.Histogram
	transportErrors *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry: registry,
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Total number of proxied responses by pipeline result",
			},
			[]string{"result"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interceptor_runs_total",
				Help:      "Total number of interceptor executions by outcome",
			},
			[]string{"interceptor", "outcome"},
		),
		rewriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rewrite_duration_seconds",
				Help:      "Time spent parsing, mutating and serializing a document",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
			},
		),
		transportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_errors_total",
				Help:      "Total number of delegation transport failures by operation",
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		r.responsesTotal,
		r.runsTotal,
		r.rewriteDuration,
		r.transportErrors,
	)
	return r
}

func (r *Recorder) ObserveResponse(result string) {
	if r == nil {
		return
	}
	r.responsesTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveRun(interceptorID, outcome string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(interceptorID, outcome).Inc()
}

func (r *Recorder) ObserveRewrite(d time.Duration) {
	if r == nil {
		return
	}
	r.rewriteDuration.Observe(d.Seconds())
}

func (r *Recorder) ObserveTransportError(op string) {
	if r == nil {
		return
	}
	r.transportErrors.WithLabelValues(op).Inc()
}

// Registry exposes the underlying registry so callers can add collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
