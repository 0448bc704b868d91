package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the extraction engine.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	StageDuration  *prometheus.HistogramVec
	StageRetries   *prometheus.CounterVec
	StagesSkipped  *prometheus.CounterVec
	InferenceCalls *prometheus.CounterVec
	TokensUsed     *prometheus.CounterVec
	CostUSD        prometheus.Counter
}

// NewMetrics registers all instruments on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "extractd",
			Name:      "runs_total",
			Help:      "Extraction runs by terminal status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "extractd",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of extraction runs.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "extractd",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage execution duration including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage", "status"}),
		StageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "extractd",
			Name:      "stage_retries_total",
			Help:      "Retry attempts per stage.",
		}, []string{"stage"}),
		StagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "extractd",
			Name:      "stages_skipped_total",
			Help:      "Stages skipped because a critical dependency failed.",
		}, []string{"stage"}),
		InferenceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "extractd",
			Name:      "inference_calls_total",
			Help:      "Inference requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		TokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "extractd",
			Name:      "tokens_total",
			Help:      "Tokens consumed by direction.",
		}, []string{"direction"}),
		CostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "extractd",
			Name:      "inference_cost_usd_total",
			Help:      "Estimated cumulative inference spend in USD.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.StageRetries,
		m.StagesSkipped,
		m.InferenceCalls,
		m.TokensUsed,
		m.CostUSD,
	)
	return m
}

// Handler returns the scrape handler for the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
