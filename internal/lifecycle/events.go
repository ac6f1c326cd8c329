package lifecycle

import (
	"github.com/google/uuid"

	"github.com/rxtech-lab/chartflow/internal/types"
)

// EventType tags the bar transitions emitted by the controller.
type EventType string

const (
	// EventBarPartial signals a new or revised in-progress bar.
	EventBarPartial EventType = "bar_partial"
	// EventBarFinal signals a closed bar; its value is permanent.
	EventBarFinal EventType = "bar_final"
	// EventBarDropped signals a candle that was rejected by the dedup or
	// ordering guard and never folded into adapter state.
	EventBarDropped EventType = "bar_dropped"
)

// Event is one clean bar transition.
type Event struct {
	Type   EventType
	Candle types.Candle
	// Reason is set for EventBarDropped only.
	Reason string
}

// Handler consumes controller events. A panic inside a handler is
// recovered and does not interrupt delivery to the remaining handlers.
type Handler func(Event)

// Subscription is the token returned by Subscribe, used to unsubscribe.
type Subscription struct {
	ID uuid.UUID
}
