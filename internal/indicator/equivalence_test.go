package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/chartflow/internal/types"
)

// EquivalenceTestSuite checks the defining property of the package: for any
// candle history, folding the bars incrementally, with an arbitrary number
// of partial updates interleaved before each finalization, reproduces the
// batch recomputation value for value.
type EquivalenceTestSuite struct {
	suite.Suite
}

func TestEquivalenceSuite(t *testing.T) {
	suite.Run(t, new(EquivalenceTestSuite))
}

func (suite *EquivalenceTestSuite) TestSMA() {
	suite.runEquivalence(NewSMAAdapter(),
		specOf(types.IndicatorTypeSMA, map[string]any{"period": 7}))
}

func (suite *EquivalenceTestSuite) TestEMA() {
	suite.runEquivalence(NewEMAAdapter(),
		specOf(types.IndicatorTypeEMA, map[string]any{"period": 9}))
}

func (suite *EquivalenceTestSuite) TestRSI() {
	suite.runEquivalence(NewRSIAdapter(),
		specOf(types.IndicatorTypeRSI, map[string]any{"period": 14}))
}

func (suite *EquivalenceTestSuite) TestMACD() {
	suite.runEquivalence(NewMACDAdapter(),
		specOf(types.IndicatorTypeMACD, map[string]any{"fast": 12, "slow": 26, "signal": 9}))
}

func (suite *EquivalenceTestSuite) TestBollingerBands() {
	suite.runEquivalence(NewBollingerBandsAdapter(),
		specOf(types.IndicatorTypeBollingerBands, map[string]any{"period": 20, "stddev": 2}))
}

func (suite *EquivalenceTestSuite) runEquivalence(adapter Adapter, spec types.IndicatorSpec) {
	candles := randomWalkCandles(60, 42)

	batch, err := adapter.Batch(spec, candles)
	suite.Require().NoError(err)
	suite.Require().Len(batch, len(candles))

	rng := rand.New(rand.NewSource(7))

	var state State

	finals := make([]types.IndicatorPoint, 0, len(candles))

	for _, c := range candles {
		// 0-2 partial updates with perturbed closes before each final.
		for p := 0; p < rng.Intn(3); p++ {
			partial := c
			partial.Final = false
			partial.Close = c.Close + rng.Float64()*4 - 2
			partial.High = math.Max(partial.High, partial.Close)
			partial.Low = math.Min(partial.Low, partial.Close)

			result, err := adapter.Incremental(spec, state, partial)
			suite.Require().NoError(err)
			suite.Require().Len(result.Points, 1)
			suite.Equal(types.PointStatusPartial, result.Points[0].Status)
			state = result.State
		}

		result, err := adapter.Incremental(spec, state, c)
		suite.Require().NoError(err)
		suite.Require().Len(result.Points, 1)
		state = result.State
		finals = append(finals, result.Points[0])
	}

	for i := range batch {
		suite.assertPointsEqual(batch[i], finals[i], i)
	}
}

func (suite *EquivalenceTestSuite) assertPointsEqual(want, got types.IndicatorPoint, index int) {
	suite.True(want.Time.Equal(got.Time), "time mismatch at index %d", index)
	suite.Equal(want.Status, got.Status, "status mismatch at index %d", index)
	suite.Require().Equal(len(want.Values), len(got.Values), "key count mismatch at index %d", index)

	for key, wantValue := range want.Values {
		gotValue, exists := got.Values[key]
		suite.Require().True(exists, "missing key %s at index %d", key, index)

		if wantValue.IsNone() {
			suite.True(gotValue.IsNone(), "expected None for %s at index %d", key, index)

			continue
		}

		suite.Require().True(gotValue.IsSome(), "expected Some for %s at index %d", key, index)
		suite.InDelta(wantValue.Unwrap(), gotValue.Unwrap(), 1e-8,
			"value mismatch for %s at index %d", key, index)
	}
}
