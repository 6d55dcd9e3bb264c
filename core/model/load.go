package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FleetType identifies the vehicle class able to carry a load.
type FleetType int

const (
	FleetLightTruck FleetType = iota
	FleetTruck
	FleetSingleTrailer
	FleetDoubleTrailer
)

// String returns a human-readable representation of the fleet type.
func (t FleetType) String() string {
	switch t {
	case FleetLightTruck:
		return "light_truck"
	case FleetTruck:
		return "truck"
	case FleetSingleTrailer:
		return "single_trailer"
	case FleetDoubleTrailer:
		return "double_trailer"
	default:
		return "unknown"
	}
}

// FleetTypeFromString parses the textual form used in configuration and APIs.
func FleetTypeFromString(s string) (FleetType, bool) {
	switch strings.ToLower(s) {
	case "light_truck":
		return FleetLightTruck, true
	case "truck":
		return FleetTruck, true
	case "single_trailer", "carreta":
		return FleetSingleTrailer, true
	case "double_trailer", "bitrem":
		return FleetDoubleTrailer, true
	default:
		return 0, false
	}
}

// PriorityTier orders loads by commercial urgency.
type PriorityTier int

const (
	PriorityStandard PriorityTier = iota
	PriorityExpress
	PriorityCritical
)

// String returns a human-readable representation of the priority tier.
func (p PriorityTier) String() string {
	switch p {
	case PriorityStandard:
		return "standard"
	case PriorityExpress:
		return "express"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// DefaultTopK is the number of ranked candidates kept when the request does
// not specify its own limit.
const DefaultTopK = 10

// LoadRequest represents one inbound cargo load to be matched against the
// fleet. It is immutable once submitted to the pipeline.
type LoadRequest struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"sender_id"`
	Origin      GeoPoint        `json:"origin"`
	Destination GeoPoint        `json:"destination"`
	WeightKg    float64         `json:"weight_kg"`
	VolumeM3    float64         `json:"volume_m3,omitempty"`
	TargetPrice decimal.Decimal `json:"target_price"` // ceiling freight value in BRL
	FleetTypes  []FleetType     `json:"fleet_types"`
	SLAHours    int             `json:"sla_hours"`
	Priority    PriorityTier    `json:"priority"`
	RadiusKm    float64         `json:"radius_km"`
	TopK        int             `json:"top_k,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the request is complete enough to dispatch.
func (r LoadRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("load id must not be empty")
	}
	if r.RadiusKm <= 0 {
		return fmt.Errorf("search radius must be positive")
	}
	if len(r.FleetTypes) == 0 {
		return fmt.Errorf("accepted fleet types must not be empty")
	}
	if !r.TargetPrice.IsPositive() {
		return fmt.Errorf("target price must be positive")
	}
	if r.WeightKg <= 0 {
		return fmt.Errorf("weight must be positive")
	}
	return nil
}

// Limit returns the effective top-k candidate limit.
func (r LoadRequest) Limit() int {
	if r.TopK > 0 {
		return r.TopK
	}
	return DefaultTopK
}

// Accepts reports whether the load can travel on the given fleet type.
func (r LoadRequest) Accepts(t FleetType) bool {
	for _, ft := range r.FleetTypes {
		if ft == t {
			return true
		}
	}
	return false
}
