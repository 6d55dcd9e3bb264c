// Package app assembles the dispatch engine from configuration.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mobiis/cargodispatch/api/loads"
	"github.com/mobiis/cargodispatch/config"
	"github.com/mobiis/cargodispatch/core/auditor"
	coremetrics "github.com/mobiis/cargodispatch/core/metrics"
	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/core/pipeline"
	"github.com/mobiis/cargodispatch/core/pipeline/logging"
	"github.com/mobiis/cargodispatch/core/quota"
	"github.com/mobiis/cargodispatch/core/tracker"
	"github.com/mobiis/cargodispatch/infra/assetindex"
	"github.com/mobiis/cargodispatch/infra/logger"
	"github.com/mobiis/cargodispatch/infra/metrics"
	"github.com/mobiis/cargodispatch/infra/mqtt"
	"github.com/mobiis/cargodispatch/internal/eventbus"
)

// Service orchestrates the dispatch pipeline and its connectors.
type Service struct {
	Pipeline *pipeline.DispatchPipeline
	Index    *assetindex.MemoryIndex
	Quota    *quota.AtomicQuota
	source   *mqtt.LoadSource
	notifier *mqtt.PahoBus
	bus      eventbus.EventBus
	slo      *metrics.SLOTracker
	store    logging.LogStore
	log      logger.Logger
	cfg      *config.Config
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	notifier, err := mqtt.NewPahoBus(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt bus: %w", err)
	}
	source, err := mqtt.NewLoadSource(cfg.MQTT, 4*cfg.Dispatch.Workers)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	index := assetindex.NewMemoryIndex(cfg.Supervisor.SnapshotMaxAge)
	supervised := tracker.NewSupervisor(index, cfg.Supervisor, logger.New("index-supervisor"))
	trk, err := tracker.New(supervised, cfg.Tracker, logger.New("candidate-tracker"))
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	q := quota.New(cfg.Quota)
	aud, err := auditor.New(cfg.Auditor, q, logger.New("risk-auditor"))
	if err != nil {
		return nil, fmt.Errorf("auditor: %w", err)
	}

	bus := eventbus.New()
	p, err := pipeline.New(trk, aud, notifier, cfg.Dispatch, sink, bus, logg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.SetQuota(q)

	var store logging.LogStore
	switch cfg.Logging.Backend {
	case "sqlite":
		store, err = logging.NewSQLiteStore(cfg.Logging.Path)
	default:
		store, err = logging.NewJSONLStore(cfg.Logging.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("decision store: %w", err)
	}
	p.SetLogStore(store)

	if cfg.Fleet.SeedFile != "" {
		n, err := seedFleet(index, cfg.Fleet.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("seed fleet: %w", err)
		}
		logg.Infof("seeded %d fleet assets from %s", n, cfg.Fleet.SeedFile)
	}

	return &Service{
		Pipeline: p,
		Index:    index,
		Quota:    q,
		source:   source,
		notifier: notifier,
		bus:      bus,
		slo:      metrics.NewSLOTracker(0),
		store:    store,
		log:      logg,
		cfg:      cfg,
	}, nil
}

// seedFleet loads a JSON array of assets into the index.
func seedFleet(index *assetindex.MemoryIndex, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var assets []model.FleetAsset
	if err := json.Unmarshal(data, &assets); err != nil {
		return 0, err
	}
	for _, a := range assets {
		if err := index.Upsert(a); err != nil {
			return 0, fmt.Errorf("asset %s: %w", a.Plate, err)
		}
	}
	return len(assets), nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.slo)
	go s.reportSLO(ctx)
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.API.Addr != "" {
		go s.serveAPI(ctx)
	}
	s.Pipeline.Run(ctx, s.source.Loads())
	return nil
}

// reportSLO periodically logs the per-stage latency percentile summary.
func (s *Service) reportSLO(ctx context.Context) {
	tick := time.NewTicker(30 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.slo.Report(s.log)
		}
	}
}

func (s *Service) serveAPI(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/api/loads", loads.NewDispatchHandler(s.Pipeline, s.cfg.API.Token))
	mux.Handle("/api/decisions", loads.NewDecisionsHandler(s.store, s.cfg.API.Token))
	mux.Handle("/api/health", loads.NewHealthHandler(s.Index.Len))
	mux.Handle("/api/info", loads.NewInfoHandler())
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Errorf("api server: %v", err)
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.source.Disconnect()
	s.notifier.Disconnect()
	return s.Pipeline.Close()
}
