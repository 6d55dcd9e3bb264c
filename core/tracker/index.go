package tracker

import (
	"context"
	"fmt"

	"github.com/mobiis/cargodispatch/core/model"
)

// SearchResult is the raw output of a radius search, tagged with the method
// that produced it so degraded cache hits stay distinguishable downstream.
type SearchResult struct {
	Assets []model.FleetAsset
	Method string
}

// AssetIndex exposes the radius-search primitive of the external geospatial
// store. Implementations must honor ctx cancellation; the tracker applies a
// per-call timeout.
type AssetIndex interface {
	Search(ctx context.Context, center model.GeoPoint, radiusKm float64, types []model.FleetType) (SearchResult, error)
}

// SourceError reports that the asset index (or another upstream source) was
// unavailable or timed out. It is an infrastructure condition, never a
// business rejection, and drives the pipeline retry policy.
type SourceError struct {
	Source  string
	Timeout bool
	Err     error
}

func (e *SourceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
