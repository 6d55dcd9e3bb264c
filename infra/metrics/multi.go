package metrics

import coremetrics "github.com/mobiis/cargodispatch/core/metrics"

// MultiSink fans out decision records to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDecision forwards the records to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDecision(recs []coremetrics.DecisionRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordDecision(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordStageLatency forwards latency metrics when supported by the sink.
func (m *MultiSink) RecordStageLatency(lats []coremetrics.StageLatency) error {
	for _, s := range m.Sinks {
		if lr, ok := s.(coremetrics.LatencyRecorder); ok {
			if err := lr.RecordStageLatency(lats); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordQuota forwards quota snapshots when supported by the sink.
func (m *MultiSink) RecordQuota(sample coremetrics.QuotaSample) error {
	for _, s := range m.Sinks {
		if qr, ok := s.(coremetrics.QuotaRecorder); ok {
			if err := qr.RecordQuota(sample); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCandidateSet forwards candidate set events when supported by the sink.
func (m *MultiSink) RecordCandidateSet(ev coremetrics.CandidateSetEvent) error {
	for _, s := range m.Sinks {
		if cr, ok := s.(coremetrics.CandidateSetRecorder); ok {
			if err := cr.RecordCandidateSet(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPublish forwards publish outcomes when supported by the sink.
func (m *MultiSink) RecordPublish(ev coremetrics.PublishEventRecord) error {
	for _, s := range m.Sinks {
		if pr, ok := s.(coremetrics.PublishRecorder); ok {
			if err := pr.RecordPublish(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
