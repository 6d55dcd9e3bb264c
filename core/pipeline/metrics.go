package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageLatency     *prometheus.HistogramVec
	decisionsTotal   *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	sourceFailures   *prometheus.CounterVec
	publishSuccess   prometheus.Counter
	publishFailure   prometheus.Counter
	quotaRatio       prometheus.Gauge
	degradedSearches prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Gauge, prometheus.Counter) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_stage_latency_seconds",
			Help:    "Latency of each dispatch pipeline stage",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"stage"},
	)
	dec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_decisions_total",
			Help: "Number of terminal dispatch decisions",
		},
		[]string{"status"},
	)
	rej := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_rejections_total",
			Help: "Number of candidate rejections by reason",
		},
		[]string{"reason"},
	)
	src := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_source_failures_total",
			Help: "Number of candidate source failures by cause (timeout vs unavailable)",
		},
		[]string{"source", "cause"},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_publish_success_total",
			Help: "Number of successful notification publish operations",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_publish_failure_total",
			Help: "Number of failed notification publish operations",
		},
	)
	ratio := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exploration_quota_ratio",
			Help: "Share of new-asset dispatches in the current quota window",
		},
	)
	deg := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "degraded_searches_total",
			Help: "Number of candidate searches served from the cached snapshot",
		},
	)
	return lat, dec, rej, src, suc, fail, ratio, deg
}

func init() {
	stageLatency, decisionsTotal, rejectionsTotal, sourceFailures, publishSuccess, publishFailure, quotaRatio, degradedSearches = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers pipeline metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(stageLatency, decisionsTotal, rejectionsTotal, sourceFailures, publishSuccess, publishFailure, quotaRatio, degradedSearches)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	stageLatency, decisionsTotal, rejectionsTotal, sourceFailures, publishSuccess, publishFailure, quotaRatio, degradedSearches = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
