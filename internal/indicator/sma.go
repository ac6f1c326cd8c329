package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// OutputSMA is the single output key of the SMA adapter.
const OutputSMA = "sma"

// SMAAdapter implements the Simple Moving Average: a rolling sum over the
// last `period` closes.
type SMAAdapter struct{}

// NewSMAAdapter creates the SMA compute adapter.
func NewSMAAdapter() Adapter {
	return &SMAAdapter{}
}

// Name returns the indicator kind.
func (a *SMAAdapter) Name() types.IndicatorType {
	return types.IndicatorTypeSMA
}

// Warmup returns period-1: the first defined point is at index period-1.
func (a *SMAAdapter) Warmup(spec types.IndicatorSpec) (int, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return 0, err
	}

	return period - 1, nil
}

// Dependencies returns no dependencies; SMA is a simple indicator.
func (a *SMAAdapter) Dependencies(spec types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	if _, err := periodInput(spec, "period"); err != nil {
		return nil, err
	}

	return nil, nil
}

// Batch recomputes the full SMA series from scratch.
func (a *SMAAdapter) Batch(spec types.IndicatorSpec, candles []types.Candle) ([]types.IndicatorPoint, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return nil, err
	}

	points := make([]types.IndicatorPoint, 0, len(candles))
	sum := 0.0

	for i, c := range candles {
		sum += c.Close
		if i >= period {
			sum -= candles[i-period].Close
		}

		if i < period-1 {
			points = append(points, types.WarmupPoint(c.Time, pointStatus(c), OutputSMA))

			continue
		}

		points = append(points, types.NewPoint(c.Time, pointStatus(c),
			map[string]optional.Option[float64]{
				OutputSMA: optional.Some(sum / float64(period)),
			}))
	}

	return points, nil
}

// Incremental folds one bar into the rolling window.
func (a *SMAAdapter) Incremental(spec types.IndicatorSpec, prev State, candle types.Candle) (IncrementalResult, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return IncrementalResult{}, err
	}

	st, err := smaStateFrom(prev, period)
	if err != nil {
		return IncrementalResult{}, err
	}

	var value optional.Option[float64]
	if candle.Final {
		value = st.window.updateFinal(candle.Close)
		st.lastPartial = optional.None[float64]()
	} else {
		value = st.window.preview(candle.Close)
		st.lastPartial = value
	}

	point := types.NewPoint(candle.Time, pointStatus(candle),
		map[string]optional.Option[float64]{OutputSMA: value})

	return IncrementalResult{
		Points: []types.IndicatorPoint{point},
		State:  st,
	}, nil
}

type smaState struct {
	window      rollingWindow
	lastPartial optional.Option[float64]
}

func (s *smaState) isComputeState() {}

func smaStateFrom(prev State, period int) (*smaState, error) {
	if prev == nil {
		return &smaState{window: newRollingWindow(period)}, nil
	}

	st, ok := prev.(*smaState)
	if !ok {
		return nil, errors.New(errors.ErrCodeStateMismatch, "sma: unexpected state type")
	}

	return st, nil
}

// rollingWindow maintains the last `period` finalized source values and
// their running sum. Shared by the SMA and Bollinger adapters.
type rollingWindow struct {
	period int
	values []float64
	sum    float64
}

func newRollingWindow(period int) rollingWindow {
	return rollingWindow{
		period: period,
		values: make([]float64, 0, period+1),
		sum:    0,
	}
}

// updateFinal folds one finalized value and returns the mean once the
// window is full.
func (w *rollingWindow) updateFinal(v float64) optional.Option[float64] {
	w.values = append(w.values, v)
	w.sum += v

	if len(w.values) > w.period {
		w.sum -= w.values[0]
		w.values = w.values[1:]
	}

	if len(w.values) < w.period {
		return optional.None[float64]()
	}

	return optional.Some(w.sum / float64(w.period))
}

// preview returns the mean the window would have if v were finalized next,
// without mutating the accumulators.
func (w *rollingWindow) preview(v float64) optional.Option[float64] {
	if len(w.values) < w.period-1 {
		return optional.None[float64]()
	}

	sum := w.sum + v
	if len(w.values) == w.period {
		sum -= w.values[0]
	}

	return optional.Some(sum / float64(w.period))
}
