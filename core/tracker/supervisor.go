package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mobiis/cargodispatch/core/logger"
	"github.com/mobiis/cargodispatch/core/model"
)

// SupervisorConfig defines the circuit-breaker and cache behavior of the
// index supervisor.
type SupervisorConfig struct {
	// FailureThreshold is the number of consecutive live failures before
	// switching to the cached snapshot. Defaults to 3.
	FailureThreshold int `json:"failure_threshold"`
	// ProbeInterval is how often the live index is probed while degraded.
	// Defaults to 5s.
	ProbeInterval time.Duration `json:"probe_interval"`
	// SnapshotMaxAge bounds the age of cached positions served in degraded
	// mode. Defaults to 10m.
	SnapshotMaxAge time.Duration `json:"snapshot_max_age"`
}

// SetDefaults applies sane defaults.
func (c *SupervisorConfig) SetDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 5 * time.Second
	}
	if c.SnapshotMaxAge <= 0 {
		c.SnapshotMaxAge = 10 * time.Minute
	}
}

type cachedAsset struct {
	asset model.FleetAsset
	seen  time.Time
}

// IndexSupervisor wraps a live AssetIndex with a circuit breaker and a
// bounded-age last-known-good snapshot. While degraded it serves the cache
// and periodically probes the live index; the tracker stays unaware of which
// mode is active, results are only tagged with the search method.
type IndexSupervisor struct {
	live AssetIndex
	cfg  SupervisorConfig
	log  logger.Logger
	now  func() time.Time

	mu        sync.Mutex
	failures  int
	degraded  bool
	lastProbe time.Time
	cache     map[string]cachedAsset
}

// NewSupervisor wraps the given live index.
func NewSupervisor(live AssetIndex, cfg SupervisorConfig, log logger.Logger) *IndexSupervisor {
	cfg.SetDefaults()
	return &IndexSupervisor{
		live:  live,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		cache: make(map[string]cachedAsset),
	}
}

// Search implements AssetIndex. Live results refresh the snapshot; failures
// beyond the threshold flip the breaker and the snapshot takes over.
func (s *IndexSupervisor) Search(ctx context.Context, center model.GeoPoint, radiusKm float64, types []model.FleetType) (SearchResult, error) {
	if !s.shouldProbe() {
		return s.fromCache(center, radiusKm, types, nil)
	}

	res, err := s.live.Search(ctx, center, radiusKm, types)
	if err == nil {
		s.recordSuccess(res.Assets)
		return res, nil
	}

	if open := s.recordFailure(); open {
		return s.fromCache(center, radiusKm, types, err)
	}
	return SearchResult{}, err
}

// shouldProbe reports whether the live index should be queried now. While
// degraded only one probe per interval goes through.
func (s *IndexSupervisor) shouldProbe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		return true
	}
	if s.now().Sub(s.lastProbe) >= s.cfg.ProbeInterval {
		s.lastProbe = s.now()
		return true
	}
	return false
}

func (s *IndexSupervisor) recordSuccess(assets []model.FleetAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		s.log.Infof("asset index recovered, leaving degraded mode")
	}
	s.failures = 0
	s.degraded = false
	now := s.now()
	for _, a := range assets {
		s.cache[a.Plate] = cachedAsset{asset: a, seen: now}
	}
}

func (s *IndexSupervisor) recordFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if !s.degraded && s.failures >= s.cfg.FailureThreshold {
		s.degraded = true
		s.lastProbe = s.now()
		s.log.Warnf("asset index degraded after %d consecutive failures, serving cached snapshot", s.failures)
	}
	return s.degraded
}

// errSnapshotExpired marks a degraded search that found no fresh snapshot
// entries to serve.
var errSnapshotExpired = errors.New("cached snapshot empty or expired")

// fromCache serves the bounded-age snapshot. A snapshot with no fresh
// entries at all is an infrastructure failure and surfaces as a
// SourceError; a fresh snapshot whose entries simply fall outside the
// radius or type filter is a legitimate empty result.
func (s *IndexSupervisor) fromCache(center model.GeoPoint, radiusKm float64, types []model.FleetType, cause error) (SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.cfg.SnapshotMaxAge)
	fresh := 0
	var assets []model.FleetAsset
	for plate, entry := range s.cache {
		if entry.seen.Before(cutoff) {
			delete(s.cache, plate)
			continue
		}
		fresh++
		if !typeAccepted(entry.asset.Type, types) {
			continue
		}
		if center.DistanceKm(entry.asset.Position) > radiusKm {
			continue
		}
		assets = append(assets, entry.asset)
	}
	if fresh == 0 {
		if cause == nil {
			cause = errSnapshotExpired
		}
		return SearchResult{}, &SourceError{Source: "asset_index", Err: cause}
	}
	return SearchResult{Assets: assets, Method: model.SearchCachedSnapshot}, nil
}

func typeAccepted(t model.FleetType, types []model.FleetType) bool {
	for _, ft := range types {
		if ft == t {
			return true
		}
	}
	return false
}
