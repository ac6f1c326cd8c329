// Package engine wires the compute registry, the bar lifecycle controller
// and the market data collaborators into one streaming indicator engine.
//
// The engine is single-threaded and event-driven: every state transition
// runs synchronously inside the handler for one inbound event. For a
// single instrument events are processed strictly in arrival order; state
// is keyed per (spec id, instrument) so unrelated instruments never
// contaminate each other.
package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rxtech-lab/chartflow/internal/indicator"
	"github.com/rxtech-lab/chartflow/internal/lifecycle"
	"github.com/rxtech-lab/chartflow/internal/logger"
	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
	"github.com/rxtech-lab/chartflow/pkg/marketdata"
)

// PointDelta is one computed indicator update, keyed by canonical spec id,
// delivered to consumers through the engine's subscription mechanism.
type PointDelta struct {
	SpecID string
	Symbol string
	Point  types.IndicatorPoint
}

// DeltaHandler consumes point deltas. Panics are recovered per handler.
type DeltaHandler func(PointDelta)

type stateKey struct {
	specID string
	symbol string
}

const defaultHistoryLimit = 500

// Engine maintains the active indicator spec set and their incremental
// compute states. Construct with New and dispose with Close; engines are
// never process-wide singletons.
type Engine struct {
	log        *logger.Logger
	registry     *indicator.Registry
	controller   *lifecycle.Controller
	history      marketdata.HistorySource
	timeframe    string
	historyLimit int

	requested []types.IndicatorSpec
	active    []types.IndicatorSpec
	order     []types.IndicatorSpec
	delivered map[string]bool

	states map[stateKey]indicator.State

	handlers     map[uuid.UUID]DeltaHandler
	handlerOrder []uuid.UUID

	barSub lifecycle.Subscription
}

// New creates an engine bound to the given collaborators. The engine
// subscribes itself to the controller's bar events.
func New(log *logger.Logger, registry *indicator.Registry, controller *lifecycle.Controller,
	history marketdata.HistorySource, timeframe string) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}

	e := &Engine{
		log:          log,
		registry:     registry,
		controller:   controller,
		history:      history,
		timeframe:    timeframe,
		historyLimit: defaultHistoryLimit,
		delivered:    make(map[string]bool),
		states:       make(map[stateKey]indicator.State),
		handlers:     make(map[uuid.UUID]DeltaHandler),
	}

	e.barSub = controller.Subscribe(e.handleBarEvent)

	return e
}

// SetHistoryLimit overrides the number of history candles loaded on every
// seed and reseed.
func (e *Engine) SetHistoryLimit(limit int) {
	if limit > 0 {
		e.historyLimit = limit
	}
}

// Close detaches the engine from the controller and releases all state.
func (e *Engine) Close() {
	e.controller.Unsubscribe(e.barSub)
	e.states = make(map[stateKey]indicator.State)
}

// AddIndicator registers an indicator spec with the engine and returns its
// canonical id. Malformed inputs are rejected synchronously; a name with
// no registered adapter is accepted and reported through dependency
// validation, excluding only that spec from the compute order.
func (e *Engine) AddIndicator(spec types.IndicatorSpec) (string, error) {
	if spec.Timeframe == "" {
		spec.Timeframe = e.timeframe
	}

	if spec.Timeframe != e.timeframe {
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe,
			"engine computes timeframe %s, spec wants %s", e.timeframe, spec.Timeframe)
	}

	if adapter, err := e.registry.Adapter(spec.Name); err == nil {
		// Warmup validates the spec inputs.
		if _, err := adapter.Warmup(spec); err != nil {
			return "", err
		}
	} else {
		e.log.Warn("indicator has no registered adapter; excluded from compute order",
			zap.String("spec", spec.ID()))
	}

	id := spec.ID()
	for _, existing := range e.requested {
		if existing.ID() == id {
			return id, nil
		}
	}

	e.requested = append(e.requested, spec)
	e.delivered[id] = true
	e.rebuild()

	return id, nil
}

// RemoveIndicator drops a spec by canonical id and releases the compute
// state of every spec that left the active set.
func (e *Engine) RemoveIndicator(id string) {
	kept := e.requested[:0]

	for _, spec := range e.requested {
		if spec.ID() != id {
			kept = append(kept, spec)
		}
	}

	e.requested = kept
	delete(e.delivered, id)
	e.rebuild()

	activeIDs := make(map[string]bool, len(e.active))
	for _, spec := range e.active {
		activeIDs[spec.ID()] = true
	}

	for key := range e.states {
		if !activeIDs[key.specID] {
			delete(e.states, key)
		}
	}
}

// ActiveSpecs returns the active spec set: every requested spec plus the
// dependencies their adapters declared, in compute order.
func (e *Engine) ActiveSpecs() []types.IndicatorSpec {
	out := make([]types.IndicatorSpec, len(e.order))
	copy(out, e.order)

	return out
}

// SubscribeDeltas registers a point delta handler.
func (e *Engine) SubscribeDeltas(handler DeltaHandler) lifecycle.Subscription {
	id := uuid.New()
	e.handlers[id] = handler
	e.handlerOrder = append(e.handlerOrder, id)

	return lifecycle.Subscription{ID: id}
}

// UnsubscribeDeltas removes a delta handler.
func (e *Engine) UnsubscribeDeltas(sub lifecycle.Subscription) {
	if _, exists := e.handlers[sub.ID]; !exists {
		return
	}

	delete(e.handlers, sub.ID)

	for i, id := range e.handlerOrder {
		if id == sub.ID {
			e.handlerOrder = append(e.handlerOrder[:i], e.handlerOrder[i+1:]...)

			break
		}
	}
}

// Seed loads finalized history for the symbol, resets lifecycle and
// compute state, and rebuilds both the batch series and the incremental
// accumulators. The returned series map is keyed by canonical id and
// covers the requested specs. Incremental state is built by replaying
// every historical bar through the adapters; by the engine's defining
// equivalence property this agrees with the batch series.
func (e *Engine) Seed(ctx context.Context, symbol string, limit int) (map[string][]types.IndicatorPoint, error) {
	candles, err := e.history.LoadCandles(ctx, symbol, e.timeframe, limit)
	if err != nil {
		return nil, err
	}

	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	// Stale dedup watermarks must never suppress the replayed bars.
	e.controller.ClearAllBars()
	e.ReleaseInstrument(symbol)

	series := make(map[string][]types.IndicatorPoint, len(e.requested))

	for _, spec := range e.order {
		adapter, err := e.registry.Adapter(spec.Name)
		if err != nil {
			continue
		}

		id := spec.ID()

		if e.delivered[id] {
			points, err := adapter.Batch(spec, candles)
			if err != nil {
				return nil, err
			}

			series[id] = points
		}

		key := stateKey{specID: id, symbol: symbol}

		var state indicator.State

		for _, c := range candles {
			result, err := adapter.Incremental(spec, state, c)
			if err != nil {
				return nil, err
			}

			state = result.State
		}

		e.states[key] = state
	}

	return series, nil
}

// ReleaseInstrument drops all compute state held for one symbol.
func (e *Engine) ReleaseInstrument(symbol string) {
	for key := range e.states {
		if key.symbol == symbol {
			delete(e.states, key)
		}
	}
}

// Run consumes a live stream until the context is cancelled or the stream
// fails. Every (re)connect is treated as a potential gap: the engine
// reseeds all configured symbols from history instead of trusting the
// resumed stream.
func (e *Engine) Run(ctx context.Context, stream marketdata.StreamSource, config marketdata.StreamConfig) error {
	connected := false

	for event, err := range stream.Stream(ctx, config) {
		if err != nil {
			return err
		}

		switch event.Type {
		case marketdata.StreamEventConnected:
			e.log.Info("stream connected")

			for _, symbol := range config.Symbols {
				if _, err := e.Seed(ctx, symbol, e.historyLimit); err != nil {
					return errors.Wrapf(errors.ErrCodeHistoryFetchFailed, err,
						"reseed failed for %s", symbol)
				}
			}

			connected = true
		case marketdata.StreamEventDisconnected:
			e.log.Warn("stream disconnected")

			connected = false
		case marketdata.StreamEventCandle:
			if !connected {
				continue
			}

			if err := e.controller.Process(event.Candle); err != nil {
				e.log.Warn("rejected candle",
					zap.String("symbol", event.Candle.Symbol),
					zap.Error(err))
			}
		}
	}

	return ctx.Err()
}

// handleBarEvent folds one clean bar transition through every active spec
// in topological order.
func (e *Engine) handleBarEvent(event lifecycle.Event) {
	if event.Type == lifecycle.EventBarDropped {
		e.log.Debug("bar dropped by lifecycle controller",
			zap.String("symbol", event.Candle.Symbol),
			zap.String("reason", event.Reason))

		return
	}

	candle := event.Candle

	for _, spec := range e.order {
		adapter, err := e.registry.Adapter(spec.Name)
		if err != nil {
			continue
		}

		key := stateKey{specID: spec.ID(), symbol: candle.Symbol}

		result, err := adapter.Incremental(spec, e.states[key], candle)
		if err != nil {
			e.log.Error("incremental update failed",
				zap.String("spec", spec.ID()),
				zap.Error(err))

			continue
		}

		e.states[key] = result.State

		if !e.delivered[spec.ID()] {
			continue
		}

		for _, point := range result.Points {
			e.publish(PointDelta{SpecID: spec.ID(), Symbol: candle.Symbol, Point: point})
		}
	}
}

func (e *Engine) publish(delta PointDelta) {
	for _, id := range e.handlerOrder {
		handler, exists := e.handlers[id]
		if !exists {
			continue
		}

		e.deliver(handler, delta)
	}
}

func (e *Engine) deliver(handler DeltaHandler, delta PointDelta) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("delta handler panicked", zap.Any("panic", r))
		}
	}()

	handler(delta)
}

// rebuild expands declared dependencies into the active set and refreshes
// the compute order. Specs without adapters stay out of the order; the
// validation result names them.
func (e *Engine) rebuild() {
	active := make([]types.IndicatorSpec, 0, len(e.requested))
	seen := make(map[string]bool, len(e.requested))

	queue := make([]types.IndicatorSpec, 0, len(e.requested))

	for _, spec := range e.requested {
		if seen[spec.ID()] {
			continue
		}

		seen[spec.ID()] = true
		active = append(active, spec)
		queue = append(queue, spec)
	}

	for len(queue) > 0 {
		spec := queue[0]
		queue = queue[1:]

		adapter, err := e.registry.Adapter(spec.Name)
		if err != nil {
			continue
		}

		deps, err := adapter.Dependencies(spec)
		if err != nil {
			continue
		}

		for _, dep := range deps {
			if seen[dep.ID()] {
				continue
			}

			seen[dep.ID()] = true
			active = append(active, dep)
			queue = append(queue, dep)
		}
	}

	e.active = active

	if result := e.registry.ValidateDependencies(active); !result.Valid {
		e.log.Warn("active set has unresolved specs", zap.Strings("missing", result.Missing))
	}

	order, err := e.registry.TopologicalOrder(active)
	if err != nil {
		// A cycle makes the active set uncomputable; keep the previous
		// order and surface the defect loudly.
		e.log.Error("dependency cycle in active spec set", zap.Error(err))

		return
	}

	e.order = order
}
