// Package marketdata holds the external collaborator contracts of the
// compute core: an ordered history source used for batch seeding and a
// live stream source delivering partial/final bar updates with
// connect/disconnect signaling. All I/O lives here; the compute core only
// ever sees plain values and events.
package marketdata

import (
	"context"
	"iter"

	"github.com/rxtech-lab/chartflow/internal/types"
)

// StreamEventType tags live feed events.
type StreamEventType string

const (
	// StreamEventCandle carries a partial or final candle.
	StreamEventCandle StreamEventType = "candle"
	// StreamEventConnected signals an (re)established connection. The
	// consumer must treat every reconnect as a potential gap and reseed
	// from history rather than trusting the resumed stream.
	StreamEventConnected StreamEventType = "connected"
	// StreamEventDisconnected signals a lost connection.
	StreamEventDisconnected StreamEventType = "disconnected"
)

// StreamEvent is one tagged live feed event.
type StreamEvent struct {
	Type   StreamEventType
	Candle types.Candle
}

// HistorySource delivers ordered, finalized candles for batch seeding.
type HistorySource interface {
	// LoadCandles returns up to limit most recent finalized candles for
	// the symbol and timeframe, ordered oldest first.
	LoadCandles(ctx context.Context, symbol string, timeframe string, limit int) ([]types.Candle, error)
}

// StreamSource delivers a live event stream of bar updates.
type StreamSource interface {
	// Stream returns an iterator that yields live events via WebSocket.
	// Uses the iter.Seq2 pattern: the iterator yields StreamEvent and
	// error pairs. Cancel the context to stop streaming. Reconnection with
	// exponential backoff happens inside; a yielded error is fatal for the
	// stream (e.g. reconnect attempts exhausted).
	Stream(ctx context.Context, config StreamConfig) iter.Seq2[StreamEvent, error]
}
