package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/mobiis/cargodispatch/core/metrics"
)

// PromSink records dispatch decisions in Prometheus metrics.
type PromSink struct {
	decisions *prometheus.CounterVec
	margin    prometheus.Histogram
	ranking   prometheus.Histogram
	latency   *prometheus.HistogramVec
	quota     prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_decision_events_total",
		Help: "Total number of terminal dispatch decisions",
	}, []string{"status", "new_asset", "degraded"})
	margin := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_approved_margin",
		Help:    "Contribution margin of approved dispatches",
		Buckets: prometheus.LinearBuckets(0.5, 0.05, 10),
	})
	ranking := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_ranking_quality",
		Help:    "Ranking quality score of terminal decisions",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_pipeline_latency_seconds",
		Help:    "Per-stage dispatch latency",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"stage"})
	quota := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_exploration_ratio",
		Help: "Share of new-asset dispatches in the current quota window",
	})

	if err := reg.Register(decisions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			decisions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(margin); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			margin = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(ranking); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			ranking = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(quota); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			quota = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{decisions: decisions, margin: margin, ranking: ranking, latency: latency, quota: quota}, nil
}

// RecordDecision increments the counter for each terminal decision.
func (s *PromSink) RecordDecision(recs []coremetrics.DecisionRecord) error {
	for _, r := range recs {
		s.decisions.WithLabelValues(r.Status, strconv.FormatBool(r.NewAsset), strconv.FormatBool(r.Degraded)).Inc()
		if r.Decision.Approved() {
			s.margin.Observe(r.Margin)
		}
		s.ranking.Observe(r.Decision.RankingQuality)
	}
	return nil
}

// RecordStageLatency records the per-stage latency histogram.
func (s *PromSink) RecordStageLatency(lats []coremetrics.StageLatency) error {
	for _, l := range lats {
		s.latency.WithLabelValues(l.Stage).Observe(l.Latency.Seconds())
	}
	return nil
}

// RecordQuota sets the exploration ratio gauge.
func (s *PromSink) RecordQuota(sample coremetrics.QuotaSample) error {
	if s.quota != nil {
		s.quota.Set(sample.Ratio)
	}
	return nil
}
