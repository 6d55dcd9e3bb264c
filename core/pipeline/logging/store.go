// Package logging persists terminal dispatch decisions for auditing.
package logging

import (
	"context"
	"time"

	"github.com/mobiis/cargodispatch/core/model"
)

// LogRecord captures one terminal dispatch decision.
type LogRecord struct {
	Timestamp   time.Time              `json:"timestamp"`
	LoadID      string                 `json:"load_id"`
	ExecutionID string                 `json:"execution_id"`
	Status      string                 `json:"status"`
	Plate       string                 `json:"plate,omitempty"`
	Decision    model.DispatchDecision `json:"decision"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start  time.Time
	End    time.Time
	LoadID string
	Plate  string
	Status string
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}
