package model

import "time"

// DecisionStatus is the terminal outcome of one dispatch evaluation.
type DecisionStatus int

const (
	StatusApproved DecisionStatus = iota
	StatusRejected
)

// String returns a human-readable representation of the status.
func (s DecisionStatus) String() string {
	switch s {
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RejectReason classifies why a candidate, or the whole request, was turned
// down.
type RejectReason int

const (
	// ReasonInsuranceExpired is the hard compliance veto: coverage flag off
	// or expiry in the past. Never softened by margin or rank.
	ReasonInsuranceExpired RejectReason = iota
	// ReasonMarginInsufficient marks a candidate whose contribution margin
	// missed the active floor.
	ReasonMarginInsufficient
	// ReasonQuotaExhausted marks a new asset skipped because the
	// fleet-exploration window had no room left.
	ReasonQuotaExhausted
	// ReasonNoCandidatesInRange marks an empty tracker result.
	ReasonNoCandidatesInRange
	// ReasonNoViableCandidate is the terminal reason when every candidate
	// was evaluated and rejected.
	ReasonNoViableCandidate
	// ReasonSourceUnavailable marks an infrastructure failure that survived
	// the retry budget. Distinct from business rejections.
	ReasonSourceUnavailable
)

// String returns a human-readable representation of the reason.
func (r RejectReason) String() string {
	switch r {
	case ReasonInsuranceExpired:
		return "insurance_expired"
	case ReasonMarginInsufficient:
		return "margin_insufficient"
	case ReasonQuotaExhausted:
		return "quota_exhausted"
	case ReasonNoCandidatesInRange:
		return "no_candidates_in_range"
	case ReasonNoViableCandidate:
		return "no_viable_candidate"
	case ReasonSourceUnavailable:
		return "source_unavailable"
	default:
		return "unknown"
	}
}

// Rejection records one considered-and-rejected candidate.
type Rejection struct {
	Plate  string       `json:"plate,omitempty"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// DispatchDecision is the outcome record of one load dispatch. It is created
// once by the pipeline and immutable after emission; ownership passes to the
// notification bus and auditing consumers.
type DispatchDecision struct {
	ExecutionID string         `json:"execution_id"`
	LoadID      string         `json:"load_id"`
	Status      DecisionStatus `json:"status"`
	Asset       *FleetAsset    `json:"asset,omitempty"`
	Margin      float64        `json:"margin,omitempty"`
	// RankingQuality is the DCG/IDCG score over the evaluated candidate
	// prefix, in [0,1]. Observability only, never gates the decision.
	RankingQuality float64     `json:"ranking_quality"`
	NewAsset       bool        `json:"new_asset,omitempty"`
	Rejections     []Rejection `json:"rejections,omitempty"`
	// Degraded flags decisions produced from cached candidates or after an
	// exhausted infrastructure retry budget.
	Degraded        bool          `json:"degraded,omitempty"`
	SearchMethod    string        `json:"search_method,omitempty"`
	TrackingLatency time.Duration `json:"tracking_latency"`
	AuditLatency    time.Duration `json:"audit_latency"`
	TotalLatency    time.Duration `json:"total_latency"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Approved reports whether the load was assigned to an asset.
func (d DispatchDecision) Approved() bool { return d.Status == StatusApproved }
