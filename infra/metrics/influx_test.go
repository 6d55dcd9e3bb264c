package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/core/model"
)

func TestInfluxSink_RecordDecision(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()
	asset := model.FleetAsset{Plate: "XYZ9K88"}
	rec := coremetrics.DecisionRecord{
		Decision: model.DispatchDecision{
			ExecutionID:    "exec-1",
			LoadID:         "load-1",
			Status:         model.StatusApproved,
			Asset:          &asset,
			Margin:         0.906,
			RankingQuality: 1,
			CreatedAt:      now,
		},
		LoadID: "load-1",
		Status: "approved",
		Margin: 0.906,
		Time:   now,
	}

	if err := sink.RecordDecision([]coremetrics.DecisionRecord{rec}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("dispatch_decision").
		AddTag("load_id", "load-1").
		AddTag("status", "approved").
		AddTag("new_asset", "false").
		AddTag("degraded", "false").
		AddTag("component", "dispatch_pipeline").
		AddField("margin", 0.906).
		AddField("ranking_quality", 1.0).
		AddField("rejections", 0).
		AddField("total_latency_ms", 0.0).
		SetTime(now)
	p.AddTag("plate", "XYZ9K88")
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body:\n got %s\nwant %s", body, expected)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}

func TestInfluxSink_RecordQuota(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Now()
	sample := coremetrics.QuotaSample{NewDispatches: 3, TotalDispatches: 20, Ratio: 0.15, Time: now}
	if err := sink.RecordQuota(sample); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if !strings.Contains(body, "fleet_exploration_quota") || !strings.Contains(body, "ratio=0.15") {
		t.Errorf("unexpected body: %s", body)
	}
}
