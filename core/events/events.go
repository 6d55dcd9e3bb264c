// Package events defines the notifications published on the internal event
// bus while a load moves through the dispatch pipeline.
package events

import (
	"time"

	"github.com/mobiis/cargodispatch/core/model"
)

// RequestEvent is published when a new load request enters the pipeline.
type RequestEvent struct {
	Request model.LoadRequest
}

// Pipeline stages reported by StageEvent.
const (
	StageReceived = "received"
	StageTracking = "tracking"
	StageAuditing = "auditing"
	StageApproved = "approved"
	StageRejected = "rejected"
)

// StageEvent is emitted on every pipeline state transition. Attempt counts
// from 1 and only increases on infrastructure retries.
type StageEvent struct {
	LoadID  string
	Stage   string
	Attempt int
	Err     error
}

// DecisionEvent carries the terminal decision for a load.
type DecisionEvent struct {
	Decision model.DispatchDecision
}

// PublishEvent reports the outcome of the notification-bus publication.
type PublishEvent struct {
	ExecutionID string
	Topic       string
	Err         error
	Latency     time.Duration
}
