package metrics

import (
	"context"
	"time"

	"github.com/mobiis/cargodispatch/core/events"
	coremetrics "github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/internal/eventbus"
)

// StartEventCollector feeds a sink from the pipeline event bus. The untyped
// stream is demultiplexed onto per-type feeds so each consumer handles one
// concrete event kind. Decision events also replay their embedded stage
// latencies when the sink records latency. The collector stops when the
// context is canceled or the bus closes.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	decisions := eventbus.NewFeed[events.DecisionEvent](16)
	publishes := eventbus.NewFeed[events.PublishEvent](16)

	go consumeDecisions(decisions.Reader(), sink)
	go consumePublishes(publishes.Reader(), sink)

	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		defer decisions.Close()
		defer publishes.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.DecisionEvent:
					decisions.Push(e)
				case events.PublishEvent:
					publishes.Push(e)
				}
			}
		}
	}()
}

func consumeDecisions(in <-chan events.DecisionEvent, sink coremetrics.MetricsSink) {
	lr, recordsLatency := sink.(coremetrics.LatencyRecorder)
	for e := range in {
		d := e.Decision
		_ = sink.RecordDecision([]coremetrics.DecisionRecord{{
			Decision: d,
			LoadID:   d.LoadID,
			Status:   d.Status.String(),
			Margin:   d.Margin,
			NewAsset: d.NewAsset,
			Degraded: d.Degraded,
			Time:     d.CreatedAt,
		}})
		if recordsLatency {
			_ = lr.RecordStageLatency([]coremetrics.StageLatency{
				{LoadID: d.LoadID, Stage: "tracking", Latency: d.TrackingLatency},
				{LoadID: d.LoadID, Stage: "auditing", Latency: d.AuditLatency},
				{LoadID: d.LoadID, Stage: "total", Latency: d.TotalLatency},
			})
		}
	}
}

func consumePublishes(in <-chan events.PublishEvent, sink coremetrics.MetricsSink) {
	pr, recordsPublish := sink.(coremetrics.PublishRecorder)
	if !recordsPublish {
		for range in {
		}
		return
	}
	for e := range in {
		_ = pr.RecordPublish(coremetrics.PublishEventRecord{
			ExecutionID: e.ExecutionID,
			Topic:       e.Topic,
			Success:     e.Err == nil,
			Latency:     e.Latency,
			Time:        time.Now(),
		})
	}
}
