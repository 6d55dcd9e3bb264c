// Package pipeline orchestrates the dispatch flow for incoming load requests:
// candidate tracking, profit and risk auditing, and notification publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mobiis/cargodispatch/core/bus"
	"github.com/mobiis/cargodispatch/core/events"
	"github.com/mobiis/cargodispatch/core/logger"
	"github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/core/pipeline/logging"
	"github.com/mobiis/cargodispatch/core/quota"
	"github.com/mobiis/cargodispatch/core/tracker"
	"github.com/mobiis/cargodispatch/internal/eventbus"
)

// Tracker locates and ranks candidate assets for a load request.
type Tracker interface {
	FindCandidates(ctx context.Context, req model.LoadRequest) (model.TrackingResult, error)
}

// Auditor produces the terminal decision for a tracked load.
type Auditor interface {
	Audit(ctx context.Context, req model.LoadRequest, tracking model.TrackingResult) model.DispatchDecision
}

// Config holds the pipeline tunables.
type Config struct {
	// MaxRetries is the number of additional tracking attempts after an
	// infrastructure failure. Business rejections are never retried.
	MaxRetries int `json:"max_retries"`
	// RetryBackoff is the pause between tracking attempts.
	RetryBackoff time.Duration `json:"retry_backoff"`
	// PublishTimeout bounds the notification publish of an approval.
	PublishTimeout time.Duration `json:"publish_timeout"`
	// Topic is the notification-bus topic approvals are published on.
	Topic string `json:"topic"`
	// Workers is the number of concurrent consumers started by Run.
	Workers int `json:"workers"`
}

// SetDefaults fills unset fields with production defaults.
func (c *Config) SetDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 10 * time.Millisecond
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 20 * time.Millisecond
	}
	if c.Topic == "" {
		c.Topic = "dispatch/decisions"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// DispatchPipeline wires the tracker and auditor together and owns every
// side effect of a decision: notification publish, metrics, event bus and
// the decision log.
type DispatchPipeline struct {
	tracker  Tracker
	auditor  Auditor
	notifier bus.NotificationBus
	cfg      Config
	metrics  metrics.MetricsSink
	bus      eventbus.EventBus
	logger   logger.Logger
	store    logging.LogStore
	quota    quota.ExplorationQuota
	mu       sync.Mutex

	now func() time.Time
}

// New creates a dispatch pipeline. The metrics sink and event bus may be nil.
func New(t Tracker, a Auditor, n bus.NotificationBus, cfg Config, sink metrics.MetricsSink, evbus eventbus.EventBus, log logger.Logger) (*DispatchPipeline, error) {
	if t == nil || a == nil || n == nil {
		return nil, fmt.Errorf("pipeline: nil parameter provided to New")
	}
	if log == nil {
		return nil, fmt.Errorf("pipeline: nil logger")
	}
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &DispatchPipeline{
		tracker:  t,
		auditor:  a,
		notifier: n,
		cfg:      cfg,
		metrics:  sink,
		bus:      evbus,
		logger:   log,
		now:      time.Now,
	}, nil
}

// SetLogStore configures the store used to persist decisions.
func (p *DispatchPipeline) SetLogStore(store logging.LogStore) {
	p.mu.Lock()
	p.store = store
	p.mu.Unlock()
}

// SetQuota configures the exploration quota sampled for observability.
func (p *DispatchPipeline) SetQuota(q quota.ExplorationQuota) {
	p.mu.Lock()
	p.quota = q
	p.mu.Unlock()
}

// Close releases resources held by the pipeline.
func (p *DispatchPipeline) Close() error {
	if p.bus != nil {
		p.bus.Close()
	}
	p.mu.Lock()
	store := p.store
	p.mu.Unlock()
	if store != nil {
		return store.Close()
	}
	return nil
}

// Dispatch runs one load request through tracking and auditing and returns
// the terminal decision. An error is returned only for invalid requests;
// infrastructure failures are encoded in the decision itself.
func (p *DispatchPipeline) Dispatch(ctx context.Context, req model.LoadRequest) (model.DispatchDecision, error) {
	if err := req.Validate(); err != nil {
		return model.DispatchDecision{}, fmt.Errorf("pipeline: invalid load request: %w", err)
	}
	start := p.now()
	execID := uuid.NewString()
	if p.bus != nil {
		p.bus.Publish(events.RequestEvent{Request: req})
		p.bus.Publish(events.StageEvent{LoadID: req.ID, Stage: events.StageReceived, Attempt: 1})
	}
	p.logger.Infof("load %s received, radius %.1fkm", req.ID, req.RadiusKm)

	tracking, trackErr := p.track(ctx, req)
	trackingLatency := p.now().Sub(start)
	stageLatency.WithLabelValues(events.StageTracking).Observe(trackingLatency.Seconds())

	var decision model.DispatchDecision
	if trackErr != nil {
		decision = p.unavailableDecision(req, trackErr)
	} else {
		if cr, ok := p.metrics.(metrics.CandidateSetRecorder); ok {
			if err := cr.RecordCandidateSet(metrics.CandidateSetEvent{
				LoadID:     req.ID,
				Candidates: len(tracking.Candidates),
				Method:     tracking.Method,
				Time:       p.now(),
			}); err != nil {
				p.logger.Errorf("candidate set metrics error: %v", err)
			}
		}
		if tracking.Degraded() {
			degradedSearches.Inc()
		}
		if p.bus != nil {
			p.bus.Publish(events.StageEvent{LoadID: req.ID, Stage: events.StageAuditing, Attempt: 1})
		}
		auditStart := p.now()
		decision = p.auditor.Audit(ctx, req, tracking)
		stageLatency.WithLabelValues(events.StageAuditing).Observe(p.now().Sub(auditStart).Seconds())
		decision.Degraded = decision.Degraded || tracking.Degraded()
		decision.SearchMethod = tracking.Method
	}

	decision.ExecutionID = execID
	decision.LoadID = req.ID
	decision.TrackingLatency = trackingLatency
	decision.TotalLatency = p.now().Sub(start)
	decision.CreatedAt = p.now()

	if decision.Approved() {
		p.publish(ctx, &decision)
	}
	// Publish latency counts toward the end-to-end figure.
	decision.TotalLatency = p.now().Sub(start)

	p.record(ctx, req, decision)
	return decision, nil
}

// track runs the candidate search, retrying infrastructure failures up to the
// configured budget.
func (p *DispatchPipeline) track(ctx context.Context, req model.LoadRequest) (model.TrackingResult, error) {
	attempts := 1 + p.cfg.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if p.bus != nil {
			p.bus.Publish(events.StageEvent{LoadID: req.ID, Stage: events.StageTracking, Attempt: attempt, Err: lastErr})
		}
		tracking, err := p.tracker.FindCandidates(ctx, req)
		if err == nil {
			return tracking, nil
		}
		lastErr = err
		var srcErr *tracker.SourceError
		if !errors.As(err, &srcErr) {
			break
		}
		cause := "unavailable"
		if srcErr.Timeout {
			cause = "timeout"
		}
		sourceFailures.WithLabelValues(srcErr.Source, cause).Inc()
		p.logger.Warnf("tracking attempt %d for load %s failed: %v", attempt, req.ID, err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.cfg.RetryBackoff):
		case <-ctx.Done():
			return model.TrackingResult{}, ctx.Err()
		}
	}
	return model.TrackingResult{}, lastErr
}

// unavailableDecision builds the rejection emitted when the candidate source
// stayed down for the whole retry budget.
func (p *DispatchPipeline) unavailableDecision(req model.LoadRequest, cause error) model.DispatchDecision {
	p.logger.Errorf("load %s rejected, candidate source unavailable: %v", req.ID, cause)
	return model.DispatchDecision{
		LoadID:         req.ID,
		Status:         model.StatusRejected,
		RankingQuality: 1.0,
		Degraded:       true,
		Rejections: []model.Rejection{{
			Reason: model.ReasonSourceUnavailable,
			Detail: cause.Error(),
		}},
	}
}

// publish notifies downstream consumers of an approval exactly once.
func (p *DispatchPipeline) publish(ctx context.Context, decision *model.DispatchDecision) {
	pubCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()
	start := p.now()
	err := p.notifier.Publish(pubCtx, p.cfg.Topic, *decision)
	latency := p.now().Sub(start)
	if err != nil {
		publishFailure.Inc()
		p.logger.Errorf("publish of %s failed: %v", decision.ExecutionID, err)
	} else {
		publishSuccess.Inc()
	}
	if p.bus != nil {
		p.bus.Publish(events.PublishEvent{
			ExecutionID: decision.ExecutionID,
			Topic:       p.cfg.Topic,
			Err:         err,
			Latency:     latency,
		})
	}
	if pr, ok := p.metrics.(metrics.PublishRecorder); ok {
		if rerr := pr.RecordPublish(metrics.PublishEventRecord{
			ExecutionID: decision.ExecutionID,
			Topic:       p.cfg.Topic,
			Success:     err == nil,
			Latency:     latency,
			Time:        p.now(),
		}); rerr != nil {
			p.logger.Errorf("publish metrics error: %v", rerr)
		}
	}
}

// record emits every observability side effect of a terminal decision.
func (p *DispatchPipeline) record(ctx context.Context, req model.LoadRequest, decision model.DispatchDecision) {
	decisionsTotal.WithLabelValues(decision.Status.String()).Inc()
	for _, rej := range decision.Rejections {
		rejectionsTotal.WithLabelValues(rej.Reason.String()).Inc()
	}

	p.mu.Lock()
	q := p.quota
	store := p.store
	p.mu.Unlock()
	if q != nil {
		snap := q.Snapshot()
		quotaRatio.Set(snap.Ratio())
		if qr, ok := p.metrics.(metrics.QuotaRecorder); ok {
			if err := qr.RecordQuota(metrics.QuotaSample{
				NewDispatches:   snap.NewDispatches,
				TotalDispatches: snap.TotalDispatches,
				Ratio:           snap.Ratio(),
				Time:            p.now(),
			}); err != nil {
				p.logger.Errorf("quota metrics error: %v", err)
			}
		}
	}

	if err := p.metrics.RecordDecision([]metrics.DecisionRecord{{
		Decision: decision,
		LoadID:   decision.LoadID,
		Status:   decision.Status.String(),
		Margin:   decision.Margin,
		NewAsset: decision.NewAsset,
		Degraded: decision.Degraded,
		Time:     decision.CreatedAt,
	}}); err != nil {
		p.logger.Errorf("decision metrics error: %v", err)
	}
	if lr, ok := p.metrics.(metrics.LatencyRecorder); ok {
		if err := lr.RecordStageLatency([]metrics.StageLatency{
			{LoadID: decision.LoadID, Stage: events.StageTracking, Latency: decision.TrackingLatency},
			{LoadID: decision.LoadID, Stage: events.StageAuditing, Latency: decision.AuditLatency},
			{LoadID: decision.LoadID, Stage: "total", Latency: decision.TotalLatency},
		}); err != nil {
			p.logger.Errorf("latency metrics error: %v", err)
		}
	}

	if store != nil {
		rec := logging.LogRecord{
			Timestamp:   decision.CreatedAt,
			LoadID:      decision.LoadID,
			ExecutionID: decision.ExecutionID,
			Status:      decision.Status.String(),
			Decision:    decision,
		}
		if decision.Asset != nil {
			rec.Plate = decision.Asset.Plate
		}
		if err := store.Append(ctx, rec); err != nil {
			p.logger.Errorf("decision log append failed: %v", err)
		}
	}

	if p.bus != nil {
		p.bus.Publish(events.DecisionEvent{Decision: decision})
		stage := events.StageRejected
		if decision.Approved() {
			stage = events.StageApproved
		}
		p.bus.Publish(events.StageEvent{LoadID: decision.LoadID, Stage: stage, Attempt: 1})
	}
	p.logger.Infof("load %s %s in %s", decision.LoadID, decision.Status, decision.TotalLatency)
}
