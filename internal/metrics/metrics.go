// Package metrics exposes Prometheus instrumentation for the ledger, the
// language-model providers, and multi-source queries. A nil *Recorder is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/claimledger/internal/model"
)

const namespace = "claimledger"

// Recorder owns a private registry so textfile exports contain only our series
type Recorder struct {
	registry *prometheus.Registry

	claimEvents     *prometheus.CounterVec
	trackDuration   *prometheus.HistogramVec
	llmRequests     *prometheus.CounterVec
	llmDuration     *prometheus.HistogramVec
	queries         *prometheus.CounterVec
	traceRatio      prometheus.Histogram
	degradedSources prometheus.Counter
}

// New creates a Recorder with all collectors registered
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		claimEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_events_total",
			Help:      "Ledger events appended, by knowledge base and event type.",
		}, []string{"brain", "event_type"}),
		trackDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "track_duration_seconds",
			Help:      "Time spent reconciling one file against the ledger.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"brain"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Language-model requests, by provider, purpose and outcome.",
		}, []string{"provider", "purpose", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Language-model request latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "multi_queries_total",
			Help:      "Multi-source queries, by outcome.",
		}, []string{"outcome"}),
		traceRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trace_completeness_ratio",
			Help:      "Overall trace completeness of multi-source answers.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		degradedSources: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_sources_total",
			Help:      "Sources answered without ledger-backed tracing.",
		}),
	}

	r.registry.MustRegister(
		r.claimEvents,
		r.trackDuration,
		r.llmRequests,
		r.llmDuration,
		r.queries,
		r.traceRatio,
		r.degradedSources,
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ClaimEvents counts n appended ledger events of one type
func (r *Recorder) ClaimEvents(brain string, eventType model.EventType, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.claimEvents.WithLabelValues(brain, string(eventType)).Add(float64(n))
}

// ObserveTrack records the duration of one file reconciliation
func (r *Recorder) ObserveTrack(brain string, d time.Duration) {
	if r == nil {
		return
	}
	r.trackDuration.WithLabelValues(brain).Observe(d.Seconds())
}

// LLMRequest records one model call
func (r *Recorder) LLMRequest(provider, purpose string, err error, d time.Duration) {
	if r == nil {
		return
	}
	r.llmRequests.WithLabelValues(provider, purpose, outcome(err)).Inc()
	r.llmDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// MultiQuery records the outcome of one orchestrated query
func (r *Recorder) MultiQuery(result *model.MultiBrainQueryResult, err error) {
	if r == nil {
		return
	}
	r.queries.WithLabelValues(outcome(err)).Inc()
	if err != nil || result == nil {
		return
	}
	r.traceRatio.Observe(result.Traceability.OverallCompletenessRatio)
	r.degradedSources.Add(float64(len(result.Traceability.DegradedBrains)))
}

// WriteTextfile exports the current values in the node_exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
