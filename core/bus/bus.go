package bus

import (
	"context"

	"github.com/mobiis/cargodispatch/core/model"
)

// NotificationBus delivers approved dispatch decisions to the driver-facing
// channel. Delivery is at-least-once; consumers deduplicate on the decision
// execution id.
type NotificationBus interface {
	// Publish sends the decision on the given topic. Implementations must
	// honor ctx cancellation and carry their own per-call timeout.
	Publish(ctx context.Context, topic string, decision model.DispatchDecision) error
}
