package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FleetAsset is a read-only snapshot of a truck/driver pair as known by the
// external asset-tracking system at evaluation time. The dispatch core never
// mutates an asset.
type FleetAsset struct {
	Plate             string          `json:"plate"`
	DriverID          string          `json:"driver_id"`
	Type              FleetType       `json:"fleet_type"`
	Position          GeoPoint        `json:"position"`
	PositionUpdatedAt time.Time       `json:"position_updated_at"`
	InsuranceValid    bool            `json:"insurance_valid"`
	InsuranceExpiry   time.Time       `json:"insurance_expiry"`
	SLAScore          float64         `json:"sla_score"` // rolling on-time fraction in [0,1]
	CostPerKm         decimal.Decimal `json:"cost_per_km"`
	AvgMargin         float64         `json:"avg_margin,omitempty"`
	TripCount30d      int             `json:"trip_count_30d"`
	RegisteredDays    int             `json:"registered_days"`
	CapacityKg        float64         `json:"capacity_kg"`
}

// Validate checks that the snapshot is usable for ranking.
func (a FleetAsset) Validate() error {
	if a.Plate == "" {
		return fmt.Errorf("asset plate must not be empty")
	}
	if !a.CostPerKm.IsPositive() {
		return fmt.Errorf("cost per km must be positive")
	}
	if a.SLAScore < 0 || a.SLAScore > 1 {
		return fmt.Errorf("sla score must be within [0,1]")
	}
	return nil
}

// InsuranceCurrent reports whether mandatory liability coverage is valid at
// the given instant. Expiry day itself still counts as covered.
func (a FleetAsset) InsuranceCurrent(now time.Time) bool {
	return a.InsuranceValid && !now.After(a.InsuranceExpiry)
}

// IsNew reports whether the asset falls under the fleet-exploration quota,
// i.e. was registered fewer than ageDays ago.
func (a FleetAsset) IsNew(ageDays int) bool {
	return a.RegisteredDays < ageDays
}
