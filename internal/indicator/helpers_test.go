package indicator

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/chartflow/internal/types"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candleAt(i int, close float64, final bool) types.Candle {
	return types.Candle{
		Symbol: "BTCUSDT",
		Time:   testBase.Add(time.Duration(i) * time.Minute),
		Open:   close,
		High:   close + 1,
		Low:    close - 1,
		Close:  close,
		Volume: 100,
		Final:  final,
	}
}

func finalCandles(closes ...float64) []types.Candle {
	candles := make([]types.Candle, 0, len(closes))
	for i, c := range closes {
		candles = append(candles, candleAt(i, c, true))
	}

	return candles
}

// randomWalkCandles generates a deterministic random walk of finalized
// candles starting near 100.
func randomWalkCandles(n int, seed int64) []types.Candle {
	rng := rand.New(rand.NewSource(seed))
	candles := make([]types.Candle, 0, n)
	close := 100.0

	for i := 0; i < n; i++ {
		close = math.Max(10, close+rng.Float64()*4-2)
		candles = append(candles, candleAt(i, close, true))
	}

	return candles
}

func specOf(name types.IndicatorType, inputs map[string]any) types.IndicatorSpec {
	return types.IndicatorSpec{
		Name:      name,
		Inputs:    inputs,
		Timeframe: "1m",
	}
}
