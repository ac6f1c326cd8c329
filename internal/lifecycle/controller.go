// Package lifecycle turns a raw, potentially noisy live candle feed into a
// clean, deduplicated, strictly ordered sequence of partial/final bar
// transitions that compute adapters can safely fold into incremental state.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rxtech-lab/chartflow/internal/logger"
	"github.com/rxtech-lab/chartflow/internal/types"
	"go.uber.org/zap"
)

// Controller is the per-instrument bar state machine. For each instrument
// it is either Idle (no partial bar open) or holding the latest partial
// candle for the current bar time, and it tracks the timestamp of the last
// bar it finalized as a dedup watermark.
//
// Controllers are explicitly constructed and injected, never process-wide.
// All methods must be called from a single goroutine per the engine's
// single-writer-per-key discipline; the controller does not lock.
type Controller struct {
	log         *logger.Logger
	instruments map[string]*instrumentState
	handlers    map[uuid.UUID]Handler
	order       []uuid.UUID
}

type instrumentState struct {
	partial      *types.Candle
	watermark    time.Time
	hasWatermark bool
}

// NewController creates a controller with no instrument state.
func NewController(log *logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Controller{
		log:         log,
		instruments: make(map[string]*instrumentState),
		handlers:    make(map[uuid.UUID]Handler),
	}
}

// Subscribe registers a handler for bar events and returns its token.
// Handlers are invoked in subscription order.
func (c *Controller) Subscribe(handler Handler) Subscription {
	id := uuid.New()
	c.handlers[id] = handler
	c.order = append(c.order, id)

	return Subscription{ID: id}
}

// Unsubscribe removes a previously registered handler.
func (c *Controller) Unsubscribe(sub Subscription) {
	if _, exists := c.handlers[sub.ID]; !exists {
		return
	}

	delete(c.handlers, sub.ID)

	for i, id := range c.order {
		if id == sub.ID {
			c.order = append(c.order[:i], c.order[i+1:]...)

			break
		}
	}
}

// Process feeds one raw candle through the state machine. Malformed
// candles are rejected with an InvalidCandle error; dedup and ordering
// anomalies are recoverable by design and reported as BarDropped events
// rather than errors.
func (c *Controller) Process(candle types.Candle) error {
	if err := candle.Validate(); err != nil {
		return err
	}

	st := c.instrument(candle.Symbol)

	if candle.Final {
		c.processFinal(st, candle)

		return nil
	}

	c.processPartial(st, candle)

	return nil
}

func (c *Controller) processFinal(st *instrumentState, candle types.Candle) {
	if st.isStale(candle.Time) {
		c.drop(candle, fmt.Sprintf("Duplicate finalization for time %d", candle.Time.Unix()))

		return
	}

	// A held partial for a different bar time means the feed skipped that
	// bar's true final event; force-finalize it so every bar time closes.
	if st.partial != nil && !st.partial.Time.Equal(candle.Time) {
		c.finalize(st, st.partial.Finalized())

		if st.isStale(candle.Time) {
			c.drop(candle, fmt.Sprintf("Duplicate finalization for time %d", candle.Time.Unix()))

			return
		}
	}

	c.finalize(st, candle)
}

func (c *Controller) processPartial(st *instrumentState, candle types.Candle) {
	if st.isStale(candle.Time) {
		c.drop(candle, fmt.Sprintf("Stale partial for time %d", candle.Time.Unix()))

		return
	}

	if st.partial != nil && !st.partial.Time.Equal(candle.Time) {
		c.finalize(st, st.partial.Finalized())

		if st.isStale(candle.Time) {
			c.drop(candle, fmt.Sprintf("Stale partial for time %d", candle.Time.Unix()))

			return
		}
	}

	held := candle
	st.partial = &held
	c.publish(Event{Type: EventBarPartial, Candle: candle})
}

func (c *Controller) finalize(st *instrumentState, candle types.Candle) {
	st.partial = nil
	st.watermark = candle.Time
	st.hasWatermark = true
	c.publish(Event{Type: EventBarFinal, Candle: candle})
}

func (c *Controller) drop(candle types.Candle, reason string) {
	c.log.Debug("bar dropped",
		zap.String("symbol", candle.Symbol),
		zap.Time("time", candle.Time),
		zap.String("reason", reason))
	c.publish(Event{Type: EventBarDropped, Candle: candle, Reason: reason})
}

// ClearAllBars resets all per-instrument state, watermarks included. It
// must be called before replaying history so stale watermarks cannot
// suppress legitimate new bars.
func (c *Controller) ClearAllBars() {
	c.instruments = make(map[string]*instrumentState)
}

func (c *Controller) instrument(symbol string) *instrumentState {
	st, exists := c.instruments[symbol]
	if !exists {
		st = &instrumentState{}
		c.instruments[symbol] = st
	}

	return st
}

func (c *Controller) publish(event Event) {
	for _, id := range c.order {
		handler, exists := c.handlers[id]
		if !exists {
			continue
		}

		c.deliver(handler, event)
	}
}

// deliver invokes one handler, recovering panics so a misbehaving listener
// cannot interrupt delivery to the rest or corrupt controller state.
func (c *Controller) deliver(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("bar event handler panicked", zap.Any("panic", r))
		}
	}()

	handler(event)
}

func (s *instrumentState) isStale(t time.Time) bool {
	return s.hasWatermark && !t.After(s.watermark)
}
