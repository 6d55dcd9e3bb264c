package metrics

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	coremetrics "github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/infra/logger"
)

// DecisionBudget is the end-to-end latency target for one dispatch decision.
const DecisionBudget = 100 * time.Millisecond

// Percentiles summarizes a latency window.
type Percentiles struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	N   int
}

// SLOTracker keeps a sliding window of per-stage latency samples and computes
// percentile summaries on demand. It implements coremetrics.LatencyRecorder
// so it can be composed into a MultiSink.
type SLOTracker struct {
	mu      sync.Mutex
	window  int
	samples map[string][]float64
}

// NewSLOTracker creates a tracker retaining up to window samples per stage.
func NewSLOTracker(window int) *SLOTracker {
	if window <= 0 {
		window = 1024
	}
	return &SLOTracker{window: window, samples: make(map[string][]float64)}
}

// RecordStageLatency appends samples to the relevant stage windows.
func (t *SLOTracker) RecordStageLatency(lats []coremetrics.StageLatency) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range lats {
		s := append(t.samples[l.Stage], l.Latency.Seconds())
		if len(s) > t.window {
			s = s[len(s)-t.window:]
		}
		t.samples[l.Stage] = s
	}
	return nil
}

// RecordDecision satisfies coremetrics.MetricsSink; the tracker only consumes
// latency samples.
func (t *SLOTracker) RecordDecision([]coremetrics.DecisionRecord) error { return nil }

// Percentiles returns the P50/P95/P99 summary for a stage window.
func (t *SLOTracker) Percentiles(stage string) Percentiles {
	t.mu.Lock()
	src := t.samples[stage]
	data := append([]float64(nil), src...)
	t.mu.Unlock()
	if len(data) == 0 {
		return Percentiles{}
	}
	sort.Float64s(data)
	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, data, nil) * float64(time.Second))
	}
	return Percentiles{P50: q(0.50), P95: q(0.95), P99: q(0.99), N: len(data)}
}

// Report logs one percentile summary line per stage and warns when the
// end-to-end P99 breaches DecisionBudget.
func (t *SLOTracker) Report(log logger.Logger) {
	for _, stage := range t.Stages() {
		p := t.Percentiles(stage)
		log.Infof("latency stage=%s n=%d p50=%s p95=%s p99=%s", stage, p.N, p.P50, p.P95, p.P99)
		if stage == "total" && p.P99 > DecisionBudget {
			log.Warnf("decision latency p99 %s exceeds %s budget", p.P99, DecisionBudget)
		}
	}
}

// Stages returns the stages with at least one recorded sample.
func (t *SLOTracker) Stages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.samples))
	for s := range t.samples {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
