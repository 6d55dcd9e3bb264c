package metrics

import (
	"time"

	"github.com/mobiis/cargodispatch/core/model"
)

// DecisionRecord represents one terminal dispatch decision to be recorded.
type DecisionRecord struct {
	Decision model.DispatchDecision
	LoadID   string
	Status   string
	Margin   float64
	NewAsset bool
	Degraded bool
	Time     time.Time
}

// MetricsSink records dispatch decisions for observability purposes.
type MetricsSink interface {
	RecordDecision(records []DecisionRecord) error
}

// StageLatency is the measured duration of one pipeline stage.
type StageLatency struct {
	LoadID  string
	Stage   string
	Latency time.Duration
}

// LatencyRecorder is implemented by sinks able to record per-stage latency.
type LatencyRecorder interface {
	RecordStageLatency(latencies []StageLatency) error
}

// QuotaSample is a snapshot of the fleet-exploration counter.
type QuotaSample struct {
	NewDispatches   uint32
	TotalDispatches uint32
	Ratio           float64
	Time            time.Time
}

// QuotaRecorder records fleet-exploration quota snapshots.
type QuotaRecorder interface {
	RecordQuota(sample QuotaSample) error
}

// CandidateSetEvent captures the size and method of one tracking round.
type CandidateSetEvent struct {
	LoadID     string
	Candidates int
	Method     string
	Time       time.Time
}

// CandidateSetRecorder records tracker output sizes.
type CandidateSetRecorder interface {
	RecordCandidateSet(ev CandidateSetEvent) error
}

// PublishEventRecord captures the notification-bus publish outcome.
type PublishEventRecord struct {
	ExecutionID string
	Topic       string
	Success     bool
	Latency     time.Duration
	Time        time.Time
}

// PublishRecorder records notification publications.
type PublishRecorder interface {
	RecordPublish(ev PublishEventRecord) error
}

// NopSink implements every recorder interface with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecision([]DecisionRecord) error      { return nil }
func (NopSink) RecordStageLatency([]StageLatency) error    { return nil }
func (NopSink) RecordQuota(QuotaSample) error              { return nil }
func (NopSink) RecordCandidateSet(CandidateSetEvent) error { return nil }
func (NopSink) RecordPublish(PublishEventRecord) error     { return nil }
