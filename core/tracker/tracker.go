// Package tracker implements the geospatial candidate search stage of the
// dispatch pipeline: query the asset index around the load origin, rank the
// returned assets by efficiency and truncate to the requested top-k.
package tracker

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mobiis/cargodispatch/core/logger"
	"github.com/mobiis/cargodispatch/core/model"
)

// Config defines tracker settings.
type Config struct {
	// SearchTimeout bounds each asset index call. Defaults to 50ms.
	SearchTimeout time.Duration `json:"search_timeout"`
	// MinDistanceKm clamps near-zero distances before the efficiency
	// division. Defaults to 0.1 km.
	MinDistanceKm float64 `json:"min_distance_km"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 50 * time.Millisecond
	}
	if c.MinDistanceKm <= 0 {
		c.MinDistanceKm = 0.1
	}
}

// GeoCandidateTracker queries the asset index and produces the ranked
// candidate list for one load request.
type GeoCandidateTracker struct {
	index AssetIndex
	cfg   Config
	log   logger.Logger
}

// New creates a tracker backed by the given index.
func New(index AssetIndex, cfg Config, log logger.Logger) (*GeoCandidateTracker, error) {
	if index == nil {
		return nil, errors.New("tracker: nil asset index")
	}
	if log == nil {
		return nil, errors.New("tracker: nil logger")
	}
	cfg.SetDefaults()
	return &GeoCandidateTracker{index: index, cfg: cfg, log: log}, nil
}

// FindCandidates runs the radius search and ranking for the request. An
// empty candidate list is a valid result; only infrastructure failures
// return an error, always as *SourceError.
func (t *GeoCandidateTracker) FindCandidates(ctx context.Context, req model.LoadRequest) (model.TrackingResult, error) {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, t.cfg.SearchTimeout)
	defer cancel()

	res, err := t.index.Search(sctx, req.Origin, req.RadiusKm, req.FleetTypes)
	if err != nil {
		var se *SourceError
		if !errors.As(err, &se) {
			se = &SourceError{
				Source:  "asset_index",
				Timeout: errors.Is(err, context.DeadlineExceeded),
				Err:     err,
			}
		}
		t.log.Warnf("asset index search failed for %s: %v", req.ID, se)
		return model.TrackingResult{}, se
	}

	candidates := t.rank(req, res.Assets)
	tr := model.TrackingResult{
		LoadID:     req.ID,
		Candidates: candidates,
		Method:     res.Method,
		RadiusKm:   req.RadiusKm,
		Latency:    time.Since(start),
	}
	t.log.Debugw("tracking complete", map[string]any{
		"load_id":    req.ID,
		"candidates": len(candidates),
		"method":     res.Method,
		"latency_ms": float64(tr.Latency.Microseconds()) / 1000,
	})
	return tr, nil
}

// rank scores, orders and truncates the raw search output.
func (t *GeoCandidateTracker) rank(req model.LoadRequest, assets []model.FleetAsset) []model.Candidate {
	candidates := make([]model.Candidate, 0, len(assets))
	for _, a := range assets {
		if !req.Accepts(a.Type) {
			continue
		}
		if a.CapacityKg > 0 && a.CapacityKg < req.WeightKg {
			continue
		}
		dist := req.Origin.DistanceKm(a.Position)
		if dist > req.RadiusKm {
			continue
		}
		if dist < t.cfg.MinDistanceKm {
			dist = t.cfg.MinDistanceKm
		}
		est := marginEstimate(req.TargetPrice, a.CostPerKm, dist)
		candidates = append(candidates, model.Candidate{
			Asset:          a,
			DistanceKm:     dist,
			MarginEstimate: est,
			Efficiency:     (1 / dist) * a.SLAScore * est,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Efficiency != cj.Efficiency {
			return ci.Efficiency > cj.Efficiency
		}
		if ci.Asset.SLAScore != cj.Asset.SLAScore {
			return ci.Asset.SLAScore > cj.Asset.SLAScore
		}
		return ci.DistanceKm < cj.DistanceKm
	})

	if limit := req.Limit(); len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// marginEstimate is the pre-audit contribution margin used for ranking,
// floored at zero so deeply negative margins do not invert the order.
func marginEstimate(target, costPerKm decimal.Decimal, distKm float64) float64 {
	cost := costPerKm.Mul(decimal.NewFromFloat(distKm))
	m, _ := target.Sub(cost).Div(target).Float64()
	if m < 0 {
		return 0
	}
	return m
}
