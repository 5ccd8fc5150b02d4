// Package metrics registers the Prometheus instrumentation for the pipeline.
//
// All methods are safe on a nil receiver so tests can construct components
// without a metrics registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline collectors.
type Metrics struct {
	tasksFinished  *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	pointsUpserted prometheus.Counter
	pagesCrawled   prometheus.Counter
	llmCalls       *prometheus.CounterVec
	queueDepth     prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpipe_tasks_finished_total",
			Help: "Pipeline tasks by terminal status.",
		}, []string{"status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docpipe_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		pointsUpserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpipe_points_upserted_total",
			Help: "Vector points written to the store.",
		}),
		pagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpipe_pages_crawled_total",
			Help: "Pages fetched by the discovery crawler.",
		}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpipe_llm_calls_total",
			Help: "LLM completion calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docpipe_queue_depth",
			Help: "Tasks waiting for the dispatcher.",
		}),
	}
}

// TaskFinished counts one terminal task.
func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(status).Inc()
}

// ObserveStage records one stage's duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// PointsUpserted counts vectors written.
func (m *Metrics) PointsUpserted(n int) {
	if m == nil {
		return
	}
	m.pointsUpserted.Add(float64(n))
}

// PageCrawled counts one crawler page fetch.
func (m *Metrics) PageCrawled() {
	if m == nil {
		return
	}
	m.pagesCrawled.Inc()
}

// LLMCall counts one completion call.
func (m *Metrics) LLMCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, outcome).Inc()
}

// SetQueueDepth publishes the dispatcher queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
