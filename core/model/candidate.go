package model

import "time"

// Search methods reported by the tracker.
const (
	SearchGeoIndex       = "geo_index"
	SearchCachedSnapshot = "cached_snapshot"
)

// Candidate scores one asset against one load. It lives only for the
// duration of a single dispatch evaluation and is never persisted.
type Candidate struct {
	Asset          FleetAsset `json:"asset"`
	DistanceKm     float64    `json:"distance_km"`
	Efficiency     float64    `json:"efficiency"`
	MarginEstimate float64    `json:"margin_estimate"`
}

// TrackingResult is the ordered candidate list produced by the tracker for
// one load request.
type TrackingResult struct {
	LoadID     string        `json:"load_id"`
	Candidates []Candidate   `json:"candidates"`
	Method     string        `json:"method"` // geo_index or cached_snapshot
	RadiusKm   float64       `json:"radius_km"`
	Latency    time.Duration `json:"latency"`
}

// Degraded reports whether candidates were served from the bounded-age cache
// instead of the live index.
func (t TrackingResult) Degraded() bool {
	return t.Method == SearchCachedSnapshot
}
