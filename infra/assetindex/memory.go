// Package assetindex provides the fleet position index queried by the
// candidate tracker.
package assetindex

import (
	"context"
	"sync"
	"time"

	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/core/tracker"
)

// MemoryIndex is an in-memory geospatial index over the fleet. Positions are
// upserted from telemetry; entries whose position is older than the TTL are
// excluded from search results.
type MemoryIndex struct {
	mu     sync.RWMutex
	assets map[string]model.FleetAsset

	// PositionTTL bounds how stale a position may be before the asset is
	// hidden from searches. Zero disables the check.
	PositionTTL time.Duration

	now func() time.Time
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex(positionTTL time.Duration) *MemoryIndex {
	return &MemoryIndex{
		assets:      make(map[string]model.FleetAsset),
		PositionTTL: positionTTL,
		now:         time.Now,
	}
}

// Upsert inserts or replaces the asset keyed by plate.
func (m *MemoryIndex) Upsert(a model.FleetAsset) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.assets[a.Plate] = a
	m.mu.Unlock()
	return nil
}

// Remove deletes the asset from the index.
func (m *MemoryIndex) Remove(plate string) {
	m.mu.Lock()
	delete(m.assets, plate)
	m.mu.Unlock()
}

// Len returns the number of indexed assets.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets)
}

// Search returns every asset of an accepted fleet type within radiusKm of
// center with a fresh enough position.
func (m *MemoryIndex) Search(ctx context.Context, center model.GeoPoint, radiusKm float64, types []model.FleetType) (tracker.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return tracker.SearchResult{}, err
	}
	accepted := make(map[model.FleetType]bool, len(types))
	for _, t := range types {
		accepted[t] = true
	}
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.FleetAsset
	for _, a := range m.assets {
		if len(accepted) > 0 && !accepted[a.Type] {
			continue
		}
		if m.PositionTTL > 0 && now.Sub(a.PositionUpdatedAt) > m.PositionTTL {
			continue
		}
		if center.DistanceKm(a.Position) > radiusKm {
			continue
		}
		out = append(out, a)
	}
	return tracker.SearchResult{Assets: out, Method: model.SearchGeoIndex}, nil
}
