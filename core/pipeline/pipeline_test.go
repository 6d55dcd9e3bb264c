package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/mobiis/cargodispatch/core/events"
	"github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/core/pipeline/logging"
	"github.com/mobiis/cargodispatch/core/quota"
	"github.com/mobiis/cargodispatch/core/tracker"
	"github.com/mobiis/cargodispatch/infra/logger"
	"github.com/mobiis/cargodispatch/internal/eventbus"
)

type fakeTracker struct {
	mu      sync.Mutex
	results []model.TrackingResult
	errs    []error
	calls   int
}

func (f *fakeTracker) FindCandidates(ctx context.Context, req model.LoadRequest) (model.TrackingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return model.TrackingResult{}, err
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	if len(f.results) > 0 {
		return f.results[len(f.results)-1], nil
	}
	return model.TrackingResult{LoadID: req.ID, Method: model.SearchGeoIndex}, nil
}

type fakeAuditor struct {
	decision model.DispatchDecision
	calls    int
}

func (f *fakeAuditor) Audit(ctx context.Context, req model.LoadRequest, tracking model.TrackingResult) model.DispatchDecision {
	f.calls++
	d := f.decision
	d.LoadID = req.ID
	return d
}

type publishCall struct {
	topic    string
	decision model.DispatchDecision
}

type fakeNotifier struct {
	mu     sync.Mutex
	calls  []publishCall
	failOn error
}

func (f *fakeNotifier) Publish(ctx context.Context, topic string, d model.DispatchDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{topic: topic, decision: d})
	return f.failOn
}

type recordSink struct {
	mu        sync.Mutex
	decisions []metrics.DecisionRecord
	latencies []metrics.StageLatency
	quotas    []metrics.QuotaSample
	sets      []metrics.CandidateSetEvent
	publishes []metrics.PublishEventRecord
}

func (s *recordSink) RecordDecision(recs []metrics.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, recs...)
	return nil
}

func (s *recordSink) RecordStageLatency(lats []metrics.StageLatency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, lats...)
	return nil
}

func (s *recordSink) RecordQuota(q metrics.QuotaSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas = append(s.quotas, q)
	return nil
}

func (s *recordSink) RecordCandidateSet(ev metrics.CandidateSetEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, ev)
	return nil
}

func (s *recordSink) RecordPublish(ev metrics.PublishEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishes = append(s.publishes, ev)
	return nil
}

type memStore struct {
	mu   sync.Mutex
	recs []logging.LogRecord
}

func (s *memStore) Append(ctx context.Context, rec logging.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memStore) Query(ctx context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logging.LogRecord(nil), s.recs...), nil
}

func (s *memStore) Close() error { return nil }

func testRequest(id string) model.LoadRequest {
	return model.LoadRequest{
		ID:          id,
		SenderID:    "shipper-1",
		Origin:      model.GeoPoint{Lat: -23.55, Lon: -46.63},
		WeightKg:    12000,
		TargetPrice: decimal.NewFromInt(3500),
		FleetTypes:  []model.FleetType{model.FleetTruck},
		RadiusKm:    100,
	}
}

func approvedDecision() model.DispatchDecision {
	asset := model.FleetAsset{Plate: "XYZ9K88", Type: model.FleetTruck}
	return model.DispatchDecision{
		Status:         model.StatusApproved,
		Asset:          &asset,
		Margin:         0.90,
		RankingQuality: 1.0,
	}
}

func oneCandidateTracking(id string) model.TrackingResult {
	return model.TrackingResult{
		LoadID: id,
		Method: model.SearchGeoIndex,
		Candidates: []model.Candidate{{
			Asset:      model.FleetAsset{Plate: "XYZ9K88", Type: model.FleetTruck},
			DistanceKm: 11.75,
		}},
	}
}

func TestDispatchApprovedPublishesOnce(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	tr := &fakeTracker{results: []model.TrackingResult{oneCandidateTracking("load-1")}}
	aud := &fakeAuditor{decision: approvedDecision()}
	notif := &fakeNotifier{}
	sink := &recordSink{}
	store := &memStore{}
	p, err := New(tr, aud, notif, Config{Topic: "dispatch/decisions"}, sink, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	p.SetLogStore(store)

	dec, err := p.Dispatch(context.Background(), testRequest("load-1"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !dec.Approved() {
		t.Fatalf("expected approval, got %+v", dec)
	}
	if dec.ExecutionID == "" {
		t.Errorf("execution id not set")
	}
	if dec.SearchMethod != model.SearchGeoIndex {
		t.Errorf("search method not propagated: %q", dec.SearchMethod)
	}
	if len(notif.calls) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(notif.calls))
	}
	if notif.calls[0].topic != "dispatch/decisions" {
		t.Errorf("wrong topic %q", notif.calls[0].topic)
	}
	if notif.calls[0].decision.ExecutionID != dec.ExecutionID {
		t.Errorf("published decision differs from returned one")
	}
	if len(store.recs) != 1 || store.recs[0].Plate != "XYZ9K88" {
		t.Fatalf("decision not persisted: %+v", store.recs)
	}
	if len(sink.decisions) != 1 || sink.decisions[0].Status != "approved" {
		t.Fatalf("decision not recorded: %+v", sink.decisions)
	}
	if len(sink.publishes) != 1 || !sink.publishes[0].Success {
		t.Fatalf("publish not recorded: %+v", sink.publishes)
	}
	if len(sink.sets) != 1 || sink.sets[0].Candidates != 1 {
		t.Fatalf("candidate set not recorded: %+v", sink.sets)
	}
}

func TestDispatchRejectedNotPublished(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	tr := &fakeTracker{results: []model.TrackingResult{oneCandidateTracking("load-2")}}
	aud := &fakeAuditor{decision: model.DispatchDecision{
		Status:         model.StatusRejected,
		RankingQuality: 0.8,
		Rejections:     []model.Rejection{{Plate: "XYZ9K88", Reason: model.ReasonMarginInsufficient}},
	}}
	notif := &fakeNotifier{}
	p, err := New(tr, aud, notif, Config{}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	dec, err := p.Dispatch(context.Background(), testRequest("load-2"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if dec.Approved() {
		t.Fatalf("expected rejection")
	}
	if len(notif.calls) != 0 {
		t.Fatalf("rejections must not be published, got %d publishes", len(notif.calls))
	}
}

func TestDispatchRetriesInfrastructureFailure(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	srcErr := &tracker.SourceError{Source: "geo_index", Err: errors.New("connection refused")}
	tr := &fakeTracker{
		errs:    []error{srcErr, nil},
		results: []model.TrackingResult{{}, oneCandidateTracking("load-3")},
	}
	aud := &fakeAuditor{decision: approvedDecision()}
	p, err := New(tr, aud, &fakeNotifier{}, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	dec, err := p.Dispatch(context.Background(), testRequest("load-3"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !dec.Approved() {
		t.Fatalf("expected approval after retry, got %+v", dec)
	}
	if tr.calls != 2 {
		t.Errorf("expected 2 tracking attempts, got %d", tr.calls)
	}
}

func TestDispatchSourceUnavailableAfterRetryBudget(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	srcErr := &tracker.SourceError{Source: "geo_index", Timeout: true, Err: context.DeadlineExceeded}
	tr := &fakeTracker{errs: []error{srcErr, srcErr, srcErr, srcErr}}
	aud := &fakeAuditor{}
	p, err := New(tr, aud, &fakeNotifier{}, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	dec, err := p.Dispatch(context.Background(), testRequest("load-4"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if dec.Approved() {
		t.Fatalf("expected rejection")
	}
	if !dec.Degraded {
		t.Errorf("decision must be flagged degraded")
	}
	if len(dec.Rejections) != 1 || dec.Rejections[0].Reason != model.ReasonSourceUnavailable {
		t.Fatalf("expected source_unavailable rejection, got %+v", dec.Rejections)
	}
	if tr.calls != 3 {
		t.Errorf("expected 3 tracking attempts, got %d", tr.calls)
	}
	if aud.calls != 0 {
		t.Errorf("auditor must not run without candidates")
	}
}

func TestDispatchSourceFailureCauseCounted(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	timeoutErr := &tracker.SourceError{Source: "geo_index", Timeout: true, Err: context.DeadlineExceeded}
	downErr := &tracker.SourceError{Source: "geo_index", Err: errors.New("connection refused")}
	tr := &fakeTracker{
		errs:    []error{timeoutErr, downErr, nil},
		results: []model.TrackingResult{{}, {}, oneCandidateTracking("load-6")},
	}
	p, err := New(tr, &fakeAuditor{decision: approvedDecision()}, &fakeNotifier{}, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	if _, err := p.Dispatch(context.Background(), testRequest("load-6")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := testutil.ToFloat64(sourceFailures.WithLabelValues("geo_index", "timeout")); got != 1 {
		t.Errorf("timeout failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sourceFailures.WithLabelValues("geo_index", "unavailable")); got != 1 {
		t.Errorf("unavailable failures = %v, want 1", got)
	}
}

func TestDispatchBusinessErrorNotRetried(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	tr := &fakeTracker{errs: []error{errors.New("malformed request state")}}
	p, err := New(tr, &fakeAuditor{}, &fakeNotifier{}, Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	dec, err := p.Dispatch(context.Background(), testRequest("load-5"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if tr.calls != 1 {
		t.Errorf("non-infrastructure errors must not be retried, got %d attempts", tr.calls)
	}
	if dec.Approved() {
		t.Fatalf("expected rejection")
	}
}

func TestDispatchInvalidRequest(t *testing.T) {
	p, err := New(&fakeTracker{}, &fakeAuditor{}, &fakeNotifier{}, Config{}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	_, err = p.Dispatch(context.Background(), model.LoadRequest{ID: "load-6"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestDispatchPublishFailureKeepsApproval(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	tr := &fakeTracker{results: []model.TrackingResult{oneCandidateTracking("load-7")}}
	notif := &fakeNotifier{failOn: errors.New("broker down")}
	sink := &recordSink{}
	p, err := New(tr, &fakeAuditor{decision: approvedDecision()}, notif, Config{}, sink, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	dec, err := p.Dispatch(context.Background(), testRequest("load-7"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !dec.Approved() {
		t.Fatalf("publish failure must not flip the decision")
	}
	if len(sink.publishes) != 1 || sink.publishes[0].Success {
		t.Fatalf("failed publish not recorded: %+v", sink.publishes)
	}
	if val := testutil.ToFloat64(publishFailure); val != 1 {
		t.Errorf("publishFailure expected 1 got %f", val)
	}
}

func TestDispatchDegradedTrackingPropagates(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	tracking := oneCandidateTracking("load-8")
	tracking.Method = model.SearchCachedSnapshot
	tr := &fakeTracker{results: []model.TrackingResult{tracking}}
	p, err := New(tr, &fakeAuditor{decision: approvedDecision()}, &fakeNotifier{}, Config{}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	dec, err := p.Dispatch(context.Background(), testRequest("load-8"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !dec.Degraded {
		t.Errorf("cached snapshot result must flag the decision degraded")
	}
	if dec.SearchMethod != model.SearchCachedSnapshot {
		t.Errorf("search method not propagated: %q", dec.SearchMethod)
	}
}

func TestDispatchQuotaSampled(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	tr := &fakeTracker{results: []model.TrackingResult{oneCandidateTracking("load-9")}}
	sink := &recordSink{}
	p, err := New(tr, &fakeAuditor{decision: approvedDecision()}, &fakeNotifier{}, Config{}, sink, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	q := quota.New(quota.Config{})
	q.RecordEstablished()
	p.SetQuota(q)

	if _, err := p.Dispatch(context.Background(), testRequest("load-9")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(sink.quotas) != 1 || sink.quotas[0].TotalDispatches != 1 {
		t.Fatalf("quota not sampled: %+v", sink.quotas)
	}
}

func TestDispatchEmitsStageEvents(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	bus := eventbus.New()
	tr := &fakeTracker{results: []model.TrackingResult{oneCandidateTracking("load-10")}}
	p, err := New(tr, &fakeAuditor{decision: approvedDecision()}, &fakeNotifier{}, Config{}, nil, bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	sub := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(sub) })

	if _, err := p.Dispatch(context.Background(), testRequest("load-10")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	stages := map[string]bool{}
	deadline := time.After(time.Second)
	for !stages[events.StageApproved] {
		select {
		case ev := <-sub:
			if se, ok := ev.(events.StageEvent); ok {
				stages[se.Stage] = true
			}
		case <-deadline:
			t.Fatalf("timed out, saw stages %v", stages)
		}
	}
	for _, want := range []string{events.StageReceived, events.StageTracking, events.StageAuditing, events.StageApproved} {
		if !stages[want] {
			t.Errorf("stage %s not observed", want)
		}
	}
}

func TestRunProcessesChannel(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	tr := &fakeTracker{results: []model.TrackingResult{oneCandidateTracking("any")}}
	notif := &fakeNotifier{}
	p, err := New(tr, &fakeAuditor{decision: approvedDecision()}, notif, Config{Workers: 3}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	loads := make(chan model.LoadRequest, 8)
	for i := 0; i < 8; i++ {
		loads <- testRequest("load-run")
	}
	close(loads)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), loads)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not drain the channel")
	}
	notif.mu.Lock()
	defer notif.mu.Unlock()
	if len(notif.calls) != 8 {
		t.Fatalf("expected 8 publishes, got %d", len(notif.calls))
	}
}
