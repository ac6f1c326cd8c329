package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// Output keys of the MACD adapter.
const (
	OutputMACD      = "macd"
	OutputSignal    = "signal"
	OutputHistogram = "histogram"
)

// MACDAdapter implements Moving Average Convergence Divergence:
// macd = EMA(fast) - EMA(slow), signal = EMA(macd, signalPeriod) seeded the
// same way as a plain EMA but over the MACD series, histogram = macd - signal.
type MACDAdapter struct{}

// NewMACDAdapter creates the MACD compute adapter.
func NewMACDAdapter() Adapter {
	return &MACDAdapter{}
}

// Name returns the indicator kind.
func (a *MACDAdapter) Name() types.IndicatorType {
	return types.IndicatorTypeMACD
}

// Warmup returns slow-1: the MACD line is first defined once the slow EMA
// is seeded. The signal and histogram outputs stay None for another
// signalPeriod-1 bars.
func (a *MACDAdapter) Warmup(spec types.IndicatorSpec) (int, error) {
	periods, err := macdPeriods(spec)
	if err != nil {
		return 0, err
	}

	return periods.slow - 1, nil
}

// Dependencies declares the two price-EMA canonical specs plus the internal
// EMA-of-MACD canonical spec for the signal line.
func (a *MACDAdapter) Dependencies(spec types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	periods, err := macdPeriods(spec)
	if err != nil {
		return nil, err
	}

	return []types.IndicatorSpec{
		{
			Name:      types.IndicatorTypeEMA,
			Inputs:    map[string]any{"period": periods.fast},
			Timeframe: spec.Timeframe,
		},
		{
			Name:      types.IndicatorTypeEMA,
			Inputs:    map[string]any{"period": periods.slow},
			Timeframe: spec.Timeframe,
		},
		{
			Name:      types.IndicatorTypeEMA,
			Inputs:    map[string]any{"period": periods.signal, inputSource: OutputMACD},
			Timeframe: spec.Timeframe,
		},
	}, nil
}

// Batch recomputes the full MACD series from scratch.
func (a *MACDAdapter) Batch(spec types.IndicatorSpec, candles []types.Candle) ([]types.IndicatorPoint, error) {
	periods, err := macdPeriods(spec)
	if err != nil {
		return nil, err
	}

	points := make([]types.IndicatorPoint, 0, len(candles))

	fast := newEMAAccumulator(periods.fast)
	slow := newEMAAccumulator(periods.slow)
	signal := newEMAAccumulator(periods.signal)

	for _, c := range candles {
		points = append(points, macdPoint(c, pointStatus(c), &fast, &slow, &signal, true))
	}

	return points, nil
}

// Incremental folds one bar into the three EMA legs.
func (a *MACDAdapter) Incremental(spec types.IndicatorSpec, prev State, candle types.Candle) (IncrementalResult, error) {
	periods, err := macdPeriods(spec)
	if err != nil {
		return IncrementalResult{}, err
	}

	st, err := macdStateFrom(prev, periods)
	if err != nil {
		return IncrementalResult{}, err
	}

	point := macdPoint(candle, pointStatus(candle), &st.fast, &st.slow, &st.signal, candle.Final)
	if candle.Final {
		st.lastPartial = nil
	} else {
		st.lastPartial = point.Values
	}

	return IncrementalResult{
		Points: []types.IndicatorPoint{point},
		State:  st,
	}, nil
}

// macdPoint advances (finalize=true) or previews (finalize=false) the three
// EMA legs for one bar and assembles the output point.
func macdPoint(c types.Candle, status types.PointStatus, fast, slow, signal *emaAccumulator, finalize bool) types.IndicatorPoint {
	var fastV, slowV optional.Option[float64]
	if finalize {
		fastV = fast.updateFinal(c.Close)
		slowV = slow.updateFinal(c.Close)
	} else {
		fastV = fast.preview(c.Close)
		slowV = slow.preview(c.Close)
	}

	macdV := optional.None[float64]()
	signalV := optional.None[float64]()
	histV := optional.None[float64]()

	if fastV.IsSome() && slowV.IsSome() {
		macd := fastV.Unwrap() - slowV.Unwrap()
		macdV = optional.Some(macd)

		if finalize {
			signalV = signal.updateFinal(macd)
		} else {
			signalV = signal.preview(macd)
		}

		if signalV.IsSome() {
			histV = optional.Some(macd - signalV.Unwrap())
		}
	}

	return types.NewPoint(c.Time, status, map[string]optional.Option[float64]{
		OutputMACD:      macdV,
		OutputSignal:    signalV,
		OutputHistogram: histV,
	})
}

type macdState struct {
	fast, slow, signal emaAccumulator
	lastPartial        map[string]optional.Option[float64]
}

func (s *macdState) isComputeState() {}

func macdStateFrom(prev State, p macdPeriodSet) (*macdState, error) {
	if prev == nil {
		return &macdState{
			fast:   newEMAAccumulator(p.fast),
			slow:   newEMAAccumulator(p.slow),
			signal: newEMAAccumulator(p.signal),
		}, nil
	}

	st, ok := prev.(*macdState)
	if !ok {
		return nil, errors.New(errors.ErrCodeStateMismatch, "macd: unexpected state type")
	}

	return st, nil
}

type macdPeriodSet struct {
	fast, slow, signal int
}

func macdPeriods(spec types.IndicatorSpec) (macdPeriodSet, error) {
	fast, err := periodInput(spec, "fast")
	if err != nil {
		return macdPeriodSet{}, err
	}

	slow, err := periodInput(spec, "slow")
	if err != nil {
		return macdPeriodSet{}, err
	}

	signal, err := periodInput(spec, "signal")
	if err != nil {
		return macdPeriodSet{}, err
	}

	if fast >= slow {
		return macdPeriodSet{}, errors.Newf(errors.ErrCodeInvalidSpec,
			"%s: fast period %d must be below slow period %d", spec.ID(), fast, slow)
	}

	return macdPeriodSet{fast: fast, slow: slow, signal: signal}, nil
}
