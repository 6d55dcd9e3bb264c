package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/infra/logger"
)

// InfluxSink writes dispatch decisions to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDecision writes each terminal decision as a measurement point.
func (s *InfluxSink) RecordDecision(recs []coremetrics.DecisionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("dispatch_decision").
			AddTag("load_id", r.LoadID).
			AddTag("status", r.Status).
			AddTag("new_asset", strconv.FormatBool(r.NewAsset)).
			AddTag("degraded", strconv.FormatBool(r.Degraded)).
			AddTag("component", "dispatch_pipeline").
			AddField("margin", round3(r.Margin)).
			AddField("ranking_quality", round3(r.Decision.RankingQuality)).
			AddField("rejections", len(r.Decision.Rejections)).
			AddField("total_latency_ms", round3(r.Decision.TotalLatency.Seconds()*1000)).
			SetTime(r.Time)
		if r.Decision.Asset != nil {
			p.AddTag("plate", r.Decision.Asset.Plate)
		}
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordStageLatency writes per-stage latency points.
func (s *InfluxSink) RecordStageLatency(lats []coremetrics.StageLatency) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, l := range lats {
		p := write.NewPointWithMeasurement("dispatch_stage_latency").
			AddTag("load_id", l.LoadID).
			AddTag("stage", l.Stage).
			AddTag("component", "dispatch_pipeline").
			AddField("latency_ms", round3(l.Latency.Seconds()*1000)).
			SetTime(time.Now())
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordQuota persists an exploration quota snapshot.
func (s *InfluxSink) RecordQuota(sample coremetrics.QuotaSample) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_exploration_quota").
		AddTag("component", "dispatch_pipeline").
		AddField("new_dispatches", int64(sample.NewDispatches)).
		AddField("total_dispatches", int64(sample.TotalDispatches)).
		AddField("ratio", round3(sample.Ratio)).
		SetTime(sample.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCandidateSet records the size and method of one tracking round.
func (s *InfluxSink) RecordCandidateSet(ev coremetrics.CandidateSetEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("candidate_set").
		AddTag("load_id", ev.LoadID).
		AddTag("method", ev.Method).
		AddTag("component", "candidate_tracker").
		AddField("candidates", ev.Candidates).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPublish records the outcome of a notification publish.
func (s *InfluxSink) RecordPublish(ev coremetrics.PublishEventRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("notification_publish").
		AddTag("execution_id", ev.ExecutionID).
		AddTag("topic", ev.Topic).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddTag("component", "notification_bus").
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
