// Package indicator holds the compute adapters for every supported
// indicator kind and the registry that orders them for execution.
//
// Every adapter exposes the same four operations: Warmup, Dependencies,
// Batch and Incremental. The defining property of the package is
// batch/incremental equivalence: for any candle history, replaying
// Incremental over the bars (with any valid partial interleaving that
// finalizes every bar in order) must reproduce the final points of Batch
// value for value.
package indicator

import (
	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// State is the opaque per-(spec, instrument) accumulator owned by the
// adapter that produced it. The registry and engine never inspect its
// internals; they only thread it through. A nil State means "fresh".
type State interface {
	isComputeState()
}

// IncrementalResult is the outcome of folding one bar update into state.
type IncrementalResult struct {
	// Points holds the point(s) affected by the update, normally exactly
	// one: the current bar's point. Finalizing a bar never retroactively
	// changes earlier finalized points.
	Points []types.IndicatorPoint
	// State is the accumulator to thread into the next call.
	State State
}

// Adapter is the per-indicator-kind compute strategy.
type Adapter interface {
	// Name returns the indicator kind this adapter computes.
	Name() types.IndicatorType

	// Warmup returns the number of leading bars for which the indicator is
	// undefined for the given spec.
	Warmup(spec types.IndicatorSpec) (int, error)

	// Dependencies returns the canonical specs of internal sub-indicators.
	// Simple indicators return an empty slice.
	Dependencies(spec types.IndicatorSpec) ([]types.IndicatorSpec, error)

	// Batch recomputes the full series from scratch given an ordered,
	// gapless candle history. Deterministic pure function of its inputs.
	Batch(spec types.IndicatorSpec, candles []types.Candle) ([]types.IndicatorPoint, error)

	// Incremental folds one bar (partial or final) into prev and emits the
	// affected point. Partial updates never mutate finalized accumulators.
	Incremental(spec types.IndicatorSpec, prev State, candle types.Candle) (IncrementalResult, error)
}

// periodInput reads and validates a positive integer input from the spec.
func periodInput(spec types.IndicatorSpec, key string) (int, error) {
	period, ok := spec.IntInput(key)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeMissingParameter,
			"%s: missing or non-integer input %q", spec.ID(), key)
	}

	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidPeriod,
			"%s: input %q must be positive, got %d", spec.ID(), key, period)
	}

	return period, nil
}

func pointStatus(c types.Candle) types.PointStatus {
	if c.Final {
		return types.PointStatusFinal
	}

	return types.PointStatusPartial
}
