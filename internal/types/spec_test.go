package types

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type SpecTestSuite struct {
	suite.Suite
}

func TestSpecSuite(t *testing.T) {
	suite.Run(t, new(SpecTestSuite))
}

func (suite *SpecTestSuite) TestCanonicalID() {
	spec := IndicatorSpec{
		Name:      IndicatorTypeEMA,
		Inputs:    map[string]any{"period": 12},
		Timeframe: "1m",
	}

	suite.Equal("ema(period=12)@1m", spec.ID())
}

func (suite *SpecTestSuite) TestCanonicalIDInputOrderIndependent() {
	a := IndicatorSpec{
		Name:      IndicatorTypeMACD,
		Inputs:    map[string]any{"fast": 12, "slow": 26, "signal": 9},
		Timeframe: "5m",
	}
	b := IndicatorSpec{
		Name:      IndicatorTypeMACD,
		Inputs:    map[string]any{"signal": 9, "fast": 12, "slow": 26},
		Timeframe: "5m",
	}

	suite.Equal(a.ID(), b.ID())
	suite.Equal("macd(fast=12,signal=9,slow=26)@5m", a.ID())
}

func (suite *SpecTestSuite) TestCanonicalIDFloatInput() {
	spec := IndicatorSpec{
		Name:      IndicatorTypeBollingerBands,
		Inputs:    map[string]any{"period": 20, "stddev": 2.0},
		Timeframe: "1h",
	}

	suite.Equal("bollinger_bands(period=20,stddev=2)@1h", spec.ID())
}

func (suite *SpecTestSuite) TestCanonicalIDDiffersByTimeframe() {
	a := IndicatorSpec{Name: IndicatorTypeSMA, Inputs: map[string]any{"period": 20}, Timeframe: "1m"}
	b := IndicatorSpec{Name: IndicatorTypeSMA, Inputs: map[string]any{"period": 20}, Timeframe: "5m"}

	suite.NotEqual(a.ID(), b.ID())
}

func (suite *SpecTestSuite) TestIntInput() {
	spec := IndicatorSpec{
		Name:      IndicatorTypeSMA,
		Inputs:    map[string]any{"period": 14, "decoded": float64(9), "fractional": 9.5},
		Timeframe: "1m",
	}

	period, ok := spec.IntInput("period")
	suite.True(ok)
	suite.Equal(14, period)

	// Whole floats are accepted because yaml/json decoding produces float64.
	decoded, ok := spec.IntInput("decoded")
	suite.True(ok)
	suite.Equal(9, decoded)

	_, ok = spec.IntInput("fractional")
	suite.False(ok)

	_, ok = spec.IntInput("missing")
	suite.False(ok)
}

func (suite *SpecTestSuite) TestFloatInput() {
	spec := IndicatorSpec{
		Name:      IndicatorTypeBollingerBands,
		Inputs:    map[string]any{"stddev": 2.5, "period": 20},
		Timeframe: "1m",
	}

	stddev, ok := spec.FloatInput("stddev")
	suite.True(ok)
	suite.Equal(2.5, stddev)

	period, ok := spec.FloatInput("period")
	suite.True(ok)
	suite.Equal(20.0, period)
}

func (suite *SpecTestSuite) TestWarmupPoint() {
	t := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	p := WarmupPoint(t, PointStatusFinal, "upper", "middle", "lower")

	suite.Len(p.Values, 3)
	suite.False(p.Defined())
	suite.Equal(PointStatusFinal, p.Status)
}

func (suite *SpecTestSuite) TestPointDefined() {
	t := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	p := NewPoint(t, PointStatusPartial, map[string]optional.Option[float64]{
		"sma": optional.Some(42.0),
	})

	suite.True(p.Defined())
	suite.Equal(PointStatusPartial, p.Status)
}
