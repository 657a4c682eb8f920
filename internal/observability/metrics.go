// Package observability provides Prometheus metrics for ranking runs.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the run metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Pipeline metrics
	StageDuration *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	LastRun       prometheus.Gauge

	// Fetch metrics
	FetchFailures *prometheus.CounterVec

	// Graph metrics
	ActivePairs     prometheus.Gauge
	GraphVertices   prometheus.Gauge
	GraphEdges      prometheus.Gauge
	PricedTokens    prometheus.Gauge
	DegeneratePaths prometheus.Gauge
	SanitizedTVL    prometheus.Gauge
	TopTVL          prometheus.Gauge
}

// NewMetrics registers the metrics on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(namespace, reg, reg)
}

// NewMetricsWith registers the metrics on reg. gatherer is used by Push and may be nil.
func NewMetricsWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	if namespace == "" {
		namespace = "tvlscope"
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"stage"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Stage cache lookups by result",
		}, []string{"stage", "result"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Ranking runs by status",
		}, []string{"status"}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),

		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "fetch_failures_total",
			Help:      "Chain reads that failed and were skipped or defaulted, by kind",
		}, []string{"kind"}),

		ActivePairs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "active_pairs",
			Help:      "Pairs with activity in the recent window",
		}),
		GraphVertices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "vertices",
			Help:      "Tokens in the liquidity graph",
		}),
		GraphEdges: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Pairs in the liquidity graph",
		}),
		PricedTokens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "priced_tokens",
			Help:      "Tokens connected to the anchor",
		}),
		DegeneratePaths: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "degenerate_paths",
			Help:      "Tokens priced zero because a hop had an empty reserve",
		}),
		SanitizedTVL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tvl",
			Name:      "sanitized_pairs",
			Help:      "Pairs whose non-finite TVL was replaced by zero",
		}),
		TopTVL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tvl",
			Name:      "top_pair_value",
			Help:      "TVL of the highest ranked pair in anchor units",
		}),
	}
}

// ObserveStage records the time since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// CacheResult counts a stage cache lookup. result is hit, miss, refresh or error.
func (m *Metrics) CacheResult(stage, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(stage, result).Inc()
}

// FetchFailed counts a skipped chain read.
func (m *Metrics) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(kind).Inc()
}

// FetchFailedN adds n skipped chain reads.
func (m *Metrics) FetchFailedN(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FetchFailures.WithLabelValues(kind).Add(float64(n))
}

// RunFinished counts a run and stamps the last success time.
func (m *Metrics) RunFinished(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("success").Inc()
	m.LastRun.SetToCurrentTime()
}

// Push sends every gathered metric to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if m.gatherer == nil {
		return fmt.Errorf("metrics have no gatherer")
	}
	if err := push.New(url, job).Gatherer(m.gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
