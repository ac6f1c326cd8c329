package types

import (
	"time"

	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// Candle is one OHLCV observation for a fixed time bucket of an instrument.
// The instrument identifier is carried explicitly on every candle; it is
// never inferred from price magnitude or any other heuristic.
//
// A candle with Final=false is an in-progress bar and may be revised by the
// feed; once a Final=true candle for the same time has been accepted, that
// bar time must not be revised again.
type Candle struct {
	Symbol string    `json:"symbol" yaml:"symbol"`
	Time   time.Time `json:"time" yaml:"time"`
	Open   float64   `json:"open" yaml:"open"`
	High   float64   `json:"high" yaml:"high"`
	Low    float64   `json:"low" yaml:"low"`
	Close  float64   `json:"close" yaml:"close"`
	Volume float64   `json:"volume" yaml:"volume"`
	Final  bool      `json:"final" yaml:"final"`
}

// Validate checks the structural invariants of the candle. It is pure and
// stateless; malformed candles are rejected at every ingestion boundary
// before they reach any compute adapter.
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidCandle, "candle has no symbol")
	}

	if c.Time.IsZero() {
		return errors.New(errors.ErrCodeInvalidCandle, "candle has no timestamp")
	}

	if c.Volume < 0 {
		return errors.Newf(errors.ErrCodeInvalidCandle, "negative volume %f", c.Volume)
	}

	if c.High < c.Open || c.High < c.Close {
		return errors.Newf(errors.ErrCodeInvalidCandle,
			"high %f below open %f or close %f", c.High, c.Open, c.Close)
	}

	if c.Low > c.Open || c.Low > c.Close {
		return errors.Newf(errors.ErrCodeInvalidCandle,
			"low %f above open %f or close %f", c.Low, c.Open, c.Close)
	}

	return nil
}

// Finalized returns a copy of the candle with Final set. Used by the
// lifecycle controller when force-finalizing a held partial bar.
func (c Candle) Finalized() Candle {
	c.Final = true

	return c
}
