package indicator

import (
	"math"
	"time"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// Output keys of the Bollinger Bands adapter.
const (
	OutputUpper  = "upper"
	OutputMiddle = "middle"
	OutputLower  = "lower"
)

// BollingerBandsAdapter implements Bollinger Bands: middle = SMA(period),
// upper/lower = middle +/- k*stdev. The standard deviation is the
// population stdev over the trailing window, maintained incrementally from
// a running sum and sum of squares.
type BollingerBandsAdapter struct{}

// NewBollingerBandsAdapter creates the Bollinger Bands compute adapter.
func NewBollingerBandsAdapter() Adapter {
	return &BollingerBandsAdapter{}
}

// Name returns the indicator kind.
func (a *BollingerBandsAdapter) Name() types.IndicatorType {
	return types.IndicatorTypeBollingerBands
}

// Warmup returns period-1.
func (a *BollingerBandsAdapter) Warmup(spec types.IndicatorSpec) (int, error) {
	period, _, err := bollingerInputs(spec)
	if err != nil {
		return 0, err
	}

	return period - 1, nil
}

// Dependencies returns no dependencies; the middle band is the adapter's
// own SMA over the same window.
func (a *BollingerBandsAdapter) Dependencies(spec types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	if _, _, err := bollingerInputs(spec); err != nil {
		return nil, err
	}

	return nil, nil
}

// Batch recomputes the full band series from scratch.
func (a *BollingerBandsAdapter) Batch(spec types.IndicatorSpec, candles []types.Candle) ([]types.IndicatorPoint, error) {
	period, stddev, err := bollingerInputs(spec)
	if err != nil {
		return nil, err
	}

	points := make([]types.IndicatorPoint, 0, len(candles))

	var sum, sumSq float64

	for i, c := range candles {
		sum += c.Close
		sumSq += c.Close * c.Close

		if i >= period {
			old := candles[i-period].Close
			sum -= old
			sumSq -= old * old
		}

		if i < period-1 {
			points = append(points, types.WarmupPoint(c.Time, pointStatus(c),
				OutputUpper, OutputMiddle, OutputLower))

			continue
		}

		points = append(points, bollingerPoint(c.Time, pointStatus(c), sum, sumSq, period, stddev))
	}

	return points, nil
}

// Incremental folds one bar into the running sums.
func (a *BollingerBandsAdapter) Incremental(spec types.IndicatorSpec, prev State, candle types.Candle) (IncrementalResult, error) {
	period, stddev, err := bollingerInputs(spec)
	if err != nil {
		return IncrementalResult{}, err
	}

	st, err := bollingerStateFrom(prev, period)
	if err != nil {
		return IncrementalResult{}, err
	}

	var point types.IndicatorPoint

	switch {
	case candle.Final:
		st.push(candle.Close)
		st.lastPartial = nil

		if st.count() < period {
			point = types.WarmupPoint(candle.Time, types.PointStatusFinal,
				OutputUpper, OutputMiddle, OutputLower)
		} else {
			point = bollingerPoint(candle.Time, types.PointStatusFinal, st.sum, st.sumSq, period, stddev)
		}
	default:
		sum, sumSq, full := st.previewSums(candle.Close)
		if !full {
			point = types.WarmupPoint(candle.Time, types.PointStatusPartial,
				OutputUpper, OutputMiddle, OutputLower)
		} else {
			point = bollingerPoint(candle.Time, types.PointStatusPartial, sum, sumSq, period, stddev)
		}

		st.lastPartial = point.Values
	}

	return IncrementalResult{
		Points: []types.IndicatorPoint{point},
		State:  st,
	}, nil
}

func bollingerPoint(t time.Time, status types.PointStatus, sum, sumSq float64, period int, stddev float64) types.IndicatorPoint {
	n := float64(period)
	middle := sum / n

	// Population variance; floating error can push it fractionally negative.
	variance := sumSq/n - middle*middle
	if variance < 0 {
		variance = 0
	}

	dev := stddev * math.Sqrt(variance)

	return types.NewPoint(t, status, map[string]optional.Option[float64]{
		OutputUpper:  optional.Some(middle + dev),
		OutputMiddle: optional.Some(middle),
		OutputLower:  optional.Some(middle - dev),
	})
}

// bollingerInputs reads period and the band width multiplier. The
// multiplier defaults to 2 when absent.
func bollingerInputs(spec types.IndicatorSpec) (int, float64, error) {
	period, err := periodInput(spec, "period")
	if err != nil {
		return 0, 0, err
	}

	stddev := 2.0
	if _, present := spec.Inputs["stddev"]; present {
		v, ok := spec.FloatInput("stddev")
		if !ok {
			return 0, 0, errors.Newf(errors.ErrCodeInvalidSpec,
				"%s: input \"stddev\" must be numeric", spec.ID())
		}

		stddev = v
	}

	if stddev <= 0 {
		return 0, 0, errors.Newf(errors.ErrCodeInvalidSpec,
			"%s: input \"stddev\" must be positive, got %f", spec.ID(), stddev)
	}

	return period, stddev, nil
}

type bollingerState struct {
	period      int
	values      []float64
	sum, sumSq  float64
	lastPartial map[string]optional.Option[float64]
}

func (s *bollingerState) isComputeState() {}

func bollingerStateFrom(prev State, period int) (*bollingerState, error) {
	if prev == nil {
		return &bollingerState{
			period: period,
			values: make([]float64, 0, period+1),
		}, nil
	}

	st, ok := prev.(*bollingerState)
	if !ok {
		return nil, errors.New(errors.ErrCodeStateMismatch, "bollinger_bands: unexpected state type")
	}

	return st, nil
}

func (s *bollingerState) count() int {
	return len(s.values)
}

func (s *bollingerState) push(v float64) {
	s.values = append(s.values, v)
	s.sum += v
	s.sumSq += v * v

	if len(s.values) > s.period {
		old := s.values[0]
		s.sum -= old
		s.sumSq -= old * old
		s.values = s.values[1:]
	}
}

// previewSums returns the sums the window would have if v were finalized
// next. full is false while the previewed window is still short.
func (s *bollingerState) previewSums(v float64) (sum, sumSq float64, full bool) {
	if len(s.values) < s.period-1 {
		return 0, 0, false
	}

	sum = s.sum + v
	sumSq = s.sumSq + v*v

	if len(s.values) == s.period {
		old := s.values[0]
		sum -= old
		sumSq -= old * old
	}

	return sum, sumSq, true
}
