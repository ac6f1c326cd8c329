package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// OutputRSI is the single output key of the RSI adapter.
const OutputRSI = "rsi"

// RSIAdapter implements the Relative Strength Index with Wilder smoothing.
//
// The average gain/loss over the first `period` close-to-close changes
// seeds the smoothed values; thereafter each smoothed value is
// ((period-1)*prev + current)/period. RSI = 100 - 100/(1+avgGain/avgLoss),
// with avgLoss=0 yielding 100 and avgGain=0 yielding 0.
type RSIAdapter struct{}

// NewRSIAdapter creates the RSI compute adapter.
func NewRSIAdapter() Adapter {
	return &RSIAdapter{}
}

// Name returns the indicator kind.
func (a *RSIAdapter) Name() types.IndicatorType {
	return types.IndicatorTypeRSI
}

// Warmup returns period: the first `period` changes need period+1 bars, so
// the first defined point is at index period.
func (a *RSIAdapter) Warmup(spec types.IndicatorSpec) (int, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return 0, err
	}

	return period, nil
}

// Dependencies returns no dependencies; RSI is a simple indicator.
func (a *RSIAdapter) Dependencies(spec types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	if _, err := periodInput(spec, "period"); err != nil {
		return nil, err
	}

	return nil, nil
}

// Batch recomputes the full RSI series from scratch.
func (a *RSIAdapter) Batch(spec types.IndicatorSpec, candles []types.Candle) ([]types.IndicatorPoint, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return nil, err
	}

	points := make([]types.IndicatorPoint, 0, len(candles))

	var (
		gainSum, lossSum float64
		avgGain, avgLoss float64
	)

	for i, c := range candles {
		if i == 0 {
			points = append(points, types.WarmupPoint(c.Time, pointStatus(c), OutputRSI))

			continue
		}

		gain, loss := gainLoss(c.Close - candles[i-1].Close)

		switch {
		case i < period:
			gainSum += gain
			lossSum += loss
			points = append(points, types.WarmupPoint(c.Time, pointStatus(c), OutputRSI))

			continue
		case i == period:
			gainSum += gain
			lossSum += loss
			avgGain = gainSum / float64(period)
			avgLoss = lossSum / float64(period)
		default:
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}

		points = append(points, types.NewPoint(c.Time, pointStatus(c),
			map[string]optional.Option[float64]{
				OutputRSI: optional.Some(rsiFromAverages(avgGain, avgLoss)),
			}))
	}

	return points, nil
}

// Incremental folds one bar into the Wilder recurrence.
func (a *RSIAdapter) Incremental(spec types.IndicatorSpec, prev State, candle types.Candle) (IncrementalResult, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return IncrementalResult{}, err
	}

	st, err := rsiStateFrom(prev, period)
	if err != nil {
		return IncrementalResult{}, err
	}

	var value optional.Option[float64]
	if candle.Final {
		value = st.updateFinal(candle.Close)
		st.lastPartial = optional.None[float64]()
	} else {
		value = st.preview(candle.Close)
		st.lastPartial = value
	}

	point := types.NewPoint(candle.Time, pointStatus(candle),
		map[string]optional.Option[float64]{OutputRSI: value})

	return IncrementalResult{
		Points: []types.IndicatorPoint{point},
		State:  st,
	}, nil
}

type rsiState struct {
	period           int
	prevClose        optional.Option[float64]
	changes          int
	gainSum, lossSum float64
	avgGain, avgLoss float64
	lastPartial      optional.Option[float64]
}

func (s *rsiState) isComputeState() {}

func rsiStateFrom(prev State, period int) (*rsiState, error) {
	if prev == nil {
		return &rsiState{period: period}, nil
	}

	st, ok := prev.(*rsiState)
	if !ok {
		return nil, errors.New(errors.ErrCodeStateMismatch, "rsi: unexpected state type")
	}

	return st, nil
}

func (s *rsiState) updateFinal(close float64) optional.Option[float64] {
	prev, err := s.prevClose.Take()
	if err != nil {
		s.prevClose = optional.Some(close)

		return optional.None[float64]()
	}

	gain, loss := gainLoss(close - prev)
	s.prevClose = optional.Some(close)
	s.changes++

	switch {
	case s.changes < s.period:
		s.gainSum += gain
		s.lossSum += loss

		return optional.None[float64]()
	case s.changes == s.period:
		s.gainSum += gain
		s.lossSum += loss
		s.avgGain = s.gainSum / float64(s.period)
		s.avgLoss = s.lossSum / float64(s.period)
	default:
		s.avgGain = (s.avgGain*float64(s.period-1) + gain) / float64(s.period)
		s.avgLoss = (s.avgLoss*float64(s.period-1) + loss) / float64(s.period)
	}

	return optional.Some(rsiFromAverages(s.avgGain, s.avgLoss))
}

// preview computes the value a finalization at close would produce without
// mutating the accumulators.
func (s *rsiState) preview(close float64) optional.Option[float64] {
	prev, err := s.prevClose.Take()
	if err != nil {
		return optional.None[float64]()
	}

	gain, loss := gainLoss(close - prev)
	changes := s.changes + 1

	switch {
	case changes < s.period:
		return optional.None[float64]()
	case changes == s.period:
		return optional.Some(rsiFromAverages(
			(s.gainSum+gain)/float64(s.period),
			(s.lossSum+loss)/float64(s.period)))
	default:
		return optional.Some(rsiFromAverages(
			(s.avgGain*float64(s.period-1)+gain)/float64(s.period),
			(s.avgLoss*float64(s.period-1)+loss)/float64(s.period)))
	}
}

func gainLoss(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}

	return 0, -change
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}
