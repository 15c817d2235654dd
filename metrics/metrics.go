// Package metrics provides Prometheus metrics for the analysis pipeline.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/veridoc/compliscan/llm"
)

// Metrics holds all Prometheus metrics for the analyzer.
type Metrics struct {
	// Analysis metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Pipeline stage metrics
	BlocksExtractedTotal prometheus.Counter
	BlocksFilteredTotal  prometheus.Counter
	BatchesTotal         prometheus.Counter
	BatchFailuresTotal   prometheus.Counter
	FindingsTotal        *prometheus.CounterVec

	// Model call metrics
	ModelCallsTotal   *prometheus.CounterVec
	ModelCallDuration prometheus.Histogram

	// Persistence metrics
	AnnotationsCreatedTotal prometheus.Counter
	AnnotationsUpdatedTotal prometheus.Counter
	PersistFailuresTotal    *prometheus.CounterVec
}

// New creates and registers all metrics with the given registerer. A nil
// registerer uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{}

	m.AnalysesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliscan_analyses_total",
			Help: "Total number of analysis requests",
		},
		[]string{"framework", "outcome"},
	)

	m.AnalysisDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compliscan_analysis_duration_seconds",
			Help:    "Duration of full document analyses in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"framework"},
	)

	m.CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_cache_hits_total",
			Help: "Total number of analysis cache hits",
		},
	)

	m.CacheMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_cache_misses_total",
			Help: "Total number of analysis cache misses",
		},
	)

	m.BlocksExtractedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_blocks_extracted_total",
			Help: "Total number of text blocks extracted from documents",
		},
	)

	m.BlocksFilteredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_blocks_filtered_total",
			Help: "Total number of text blocks kept after relevance filtering",
		},
	)

	m.BatchesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_batches_total",
			Help: "Total number of batches sent for analysis",
		},
	)

	m.BatchFailuresTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_batch_failures_total",
			Help: "Total number of batches that yielded no findings due to errors",
		},
	)

	m.FindingsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliscan_findings_total",
			Help: "Total number of findings kept after aggregation",
		},
		[]string{"severity"},
	)

	m.ModelCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliscan_model_calls_total",
			Help: "Total number of model invocations",
		},
		[]string{"status"},
	)

	m.ModelCallDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compliscan_model_call_duration_seconds",
			Help:    "Duration of model invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.AnnotationsCreatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_annotations_created_total",
			Help: "Total number of annotations created by upserts",
		},
	)

	m.AnnotationsUpdatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "compliscan_annotations_updated_total",
			Help: "Total number of annotations updated by upserts",
		},
	)

	m.PersistFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliscan_persist_failures_total",
			Help: "Total number of swallowed persistence failures",
		},
		[]string{"target"},
	)

	return m
}

// RecordAnalysis records one completed analysis request.
func (m *Metrics) RecordAnalysis(framework, outcome string, duration time.Duration) {
	m.AnalysesTotal.WithLabelValues(framework, outcome).Inc()
	m.AnalysisDuration.WithLabelValues(framework).Observe(duration.Seconds())
}

// Instrument wraps a model client so every invocation is counted and
// timed, labeled by outcome.
func (m *Metrics) Instrument(inner llm.Invoker) llm.Invoker {
	return &instrumentedInvoker{inner: inner, metrics: m}
}

type instrumentedInvoker struct {
	inner   llm.Invoker
	metrics *Metrics
}

func (i *instrumentedInvoker) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := i.inner.Complete(ctx, req)
	i.metrics.ModelCallDuration.Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.ModelCallsTotal.WithLabelValues(status).Inc()
	return resp, err
}
