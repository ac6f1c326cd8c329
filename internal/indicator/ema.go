package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// OutputEMA is the single output key of the EMA adapter.
const OutputEMA = "ema"

// inputSource marks an EMA spec as an internal node computed over another
// indicator's series rather than over candle closes. Such nodes exist so
// composite indicators can declare their sub-EMAs in the dependency graph;
// the composite adapter owns the actual computation.
const inputSource = "source"

// EMAAdapter implements the Exponential Moving Average.
//
// The first defined value at index period-1 is the simple average of the
// first `period` closes; subsequent values follow
// value = alpha*close + (1-alpha)*prev with alpha = 2/(period+1).
// The seeding choice matters: incremental state reproduces it exactly.
type EMAAdapter struct{}

// NewEMAAdapter creates the EMA compute adapter.
func NewEMAAdapter() Adapter {
	return &EMAAdapter{}
}

// Name returns the indicator kind.
func (a *EMAAdapter) Name() types.IndicatorType {
	return types.IndicatorTypeEMA
}

// Warmup returns period-1.
func (a *EMAAdapter) Warmup(spec types.IndicatorSpec) (int, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return 0, err
	}

	return period - 1, nil
}

// Dependencies returns no dependencies; EMA is a simple indicator.
func (a *EMAAdapter) Dependencies(spec types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	if _, err := periodInput(spec, "period"); err != nil {
		return nil, err
	}

	return nil, nil
}

// Batch recomputes the full EMA series from scratch.
func (a *EMAAdapter) Batch(spec types.IndicatorSpec, candles []types.Candle) ([]types.IndicatorPoint, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return nil, err
	}

	points := make([]types.IndicatorPoint, 0, len(candles))

	// Internal source-routed nodes (e.g. the EMA-of-MACD leg) are computed
	// by their composite owner; as a standalone series they stay undefined.
	if sourceRouted(spec) {
		for _, c := range candles {
			points = append(points, types.WarmupPoint(c.Time, pointStatus(c), OutputEMA))
		}

		return points, nil
	}

	sum := 0.0
	alpha := 2.0 / float64(period+1)
	ema := 0.0

	for i, c := range candles {
		switch {
		case i < period-1:
			sum += c.Close
			points = append(points, types.WarmupPoint(c.Time, pointStatus(c), OutputEMA))

			continue
		case i == period-1:
			// Seed with the simple average of the first period closes.
			sum += c.Close
			ema = sum / float64(period)
		default:
			ema = c.Close*alpha + ema*(1-alpha)
		}

		points = append(points, types.NewPoint(c.Time, pointStatus(c),
			map[string]optional.Option[float64]{OutputEMA: optional.Some(ema)}))
	}

	return points, nil
}

// Incremental folds one bar into the EMA recurrence.
func (a *EMAAdapter) Incremental(spec types.IndicatorSpec, prev State, candle types.Candle) (IncrementalResult, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return IncrementalResult{}, err
	}

	if sourceRouted(spec) {
		point := types.WarmupPoint(candle.Time, pointStatus(candle), OutputEMA)

		return IncrementalResult{Points: []types.IndicatorPoint{point}, State: prev}, nil
	}

	st, err := emaStateFrom(prev, period)
	if err != nil {
		return IncrementalResult{}, err
	}

	var value optional.Option[float64]
	if candle.Final {
		value = st.acc.updateFinal(candle.Close)
		st.lastPartial = optional.None[float64]()
	} else {
		value = st.acc.preview(candle.Close)
		st.lastPartial = value
	}

	point := types.NewPoint(candle.Time, pointStatus(candle),
		map[string]optional.Option[float64]{OutputEMA: value})

	return IncrementalResult{
		Points: []types.IndicatorPoint{point},
		State:  st,
	}, nil
}

func sourceRouted(spec types.IndicatorSpec) bool {
	src, ok := spec.Inputs[inputSource].(string)

	return ok && src != "close"
}

type emaState struct {
	acc         emaAccumulator
	lastPartial optional.Option[float64]
}

func (s *emaState) isComputeState() {}

func emaStateFrom(prev State, period int) (*emaState, error) {
	if prev == nil {
		return &emaState{acc: newEMAAccumulator(period)}, nil
	}

	st, ok := prev.(*emaState)
	if !ok {
		return nil, errors.New(errors.ErrCodeStateMismatch, "ema: unexpected state type")
	}

	return st, nil
}

// emaAccumulator carries the incremental EMA recurrence over finalized
// source values. It is reused by the MACD adapter for its fast, slow and
// signal legs.
type emaAccumulator struct {
	period int
	alpha  float64
	sum    float64 // running seed sum until the accumulator is seeded
	seen   int
	value  float64
	seeded bool
}

func newEMAAccumulator(period int) emaAccumulator {
	return emaAccumulator{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

// updateFinal folds one finalized source value.
func (a *emaAccumulator) updateFinal(v float64) optional.Option[float64] {
	if !a.seeded {
		a.sum += v
		a.seen++

		if a.seen < a.period {
			return optional.None[float64]()
		}

		a.value = a.sum / float64(a.period)
		a.seeded = true

		return optional.Some(a.value)
	}

	a.value = v*a.alpha + a.value*(1-a.alpha)

	return optional.Some(a.value)
}

// preview returns the value the accumulator would produce if v were
// finalized next, without mutating anything.
func (a *emaAccumulator) preview(v float64) optional.Option[float64] {
	if !a.seeded {
		if a.seen < a.period-1 {
			return optional.None[float64]()
		}

		return optional.Some((a.sum + v) / float64(a.period))
	}

	return optional.Some(v*a.alpha + a.value*(1-a.alpha))
}
