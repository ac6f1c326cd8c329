package marketdata

import (
	"context"
	"iter"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/rxtech-lab/chartflow/internal/logger"
	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// BinanceSource implements HistorySource and StreamSource against the
// Binance spot API. Public market data endpoints need no credentials.
type BinanceSource struct {
	client *binance.Client
	log    *logger.Logger
}

// NewBinanceSource creates a Binance market data source.
func NewBinanceSource(log *logger.Logger) *BinanceSource {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BinanceSource{
		client: binance.NewClient("", ""),
		log:    log,
	}
}

// LoadCandles returns up to limit most recent finalized candles, oldest
// first. The bar still in progress on the exchange is excluded so every
// returned candle is final.
func (s *BinanceSource) LoadCandles(ctx context.Context, symbol string, timeframe string, limit int) ([]types.Candle, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(limit + 1).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeHistoryFetchFailed, err,
			"failed to fetch klines for %s %s", symbol, timeframe)
	}

	nowMillis := time.Now().UnixMilli()
	candles := make([]types.Candle, 0, len(klines))

	for _, k := range klines {
		// Binance includes the currently open bar as the last kline.
		if k.CloseTime >= nowMillis {
			continue
		}

		candle, err := klineToCandle(symbol, k)
		if err != nil {
			return nil, err
		}

		if err := candle.Validate(); err != nil {
			return nil, err
		}

		candles = append(candles, candle)
	}

	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	return candles, nil
}

// Stream yields live kline events over WebSocket. Connection loss triggers
// reconnection with exponential backoff (base delay, doubling, capped) up
// to MaxAttempts consecutive failures; every successful (re)connect yields
// a Connected event so the consumer can reseed from history.
func (s *BinanceSource) Stream(ctx context.Context, config StreamConfig) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		if err := config.Validate(); err != nil {
			yield(StreamEvent{}, err)

			return
		}

		pairs := make(map[string]string, len(config.Symbols))
		for _, symbol := range config.Symbols {
			pairs[symbol] = config.Interval
		}

		retry := &backoff.Backoff{
			Min:    config.ReconnectBase,
			Max:    config.ReconnectMax,
			Factor: 2,
			Jitter: true,
		}

		events := make(chan StreamEvent, 256)
		wsErrs := make(chan error, 16)

		handler := func(event *binance.WsKlineEvent) {
			candle, err := wsKlineToCandle(event)
			if err != nil {
				s.log.Warn("discarding unparsable kline event", zap.Error(err))

				return
			}

			select {
			case events <- StreamEvent{Type: StreamEventCandle, Candle: candle}:
			case <-ctx.Done():
			}
		}

		errHandler := func(err error) {
			select {
			case wsErrs <- err:
			default:
			}
		}

		attempts := 0

		for {
			if ctx.Err() != nil {
				return
			}

			doneC, stopC, err := binance.WsCombinedKlineServe(pairs, handler, errHandler)
			if err != nil {
				attempts++
				if attempts >= config.MaxAttempts {
					yield(StreamEvent{}, errors.Wrapf(errors.ErrCodeReconnectExhausted, err,
						"giving up after %d connection attempts", attempts))

					return
				}

				delay := retry.Duration()
				s.log.Warn("stream connect failed, retrying",
					zap.Error(err),
					zap.Int("attempt", attempts),
					zap.Duration("delay", delay))

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return
				}
			}

			attempts = 0
			retry.Reset()

			if !yield(StreamEvent{Type: StreamEventConnected}, nil) {
				close(stopC)

				return
			}

			if !s.drain(ctx, yield, events, wsErrs, doneC, stopC) {
				return
			}

			// Connection dropped; loop reconnects.
			if !yield(StreamEvent{Type: StreamEventDisconnected}, nil) {
				return
			}
		}
	}
}

// drain forwards candle events until the connection closes or the consumer
// stops. Returns false when iteration must end.
func (s *BinanceSource) drain(ctx context.Context, yield func(StreamEvent, error) bool,
	events chan StreamEvent, wsErrs chan error, doneC, stopC chan struct{}) bool {
	for {
		select {
		case event := <-events:
			if !yield(event, nil) {
				close(stopC)

				return false
			}
		case err := <-wsErrs:
			// Transport errors are non-fatal; the ws connection reports
			// closure via doneC and the outer loop reconnects.
			s.log.Warn("stream error", zap.Error(err))
		case <-doneC:
			return true
		case <-ctx.Done():
			close(stopC)

			return false
		}
	}
}

func klineToCandle(symbol string, k *binance.Kline) (types.Candle, error) {
	open, err := parsePrice(k.Open)
	if err != nil {
		return types.Candle{}, err
	}

	high, err := parsePrice(k.High)
	if err != nil {
		return types.Candle{}, err
	}

	low, err := parsePrice(k.Low)
	if err != nil {
		return types.Candle{}, err
	}

	closePrice, err := parsePrice(k.Close)
	if err != nil {
		return types.Candle{}, err
	}

	volume, err := parsePrice(k.Volume)
	if err != nil {
		return types.Candle{}, err
	}

	return types.Candle{
		Symbol: symbol,
		Time:   time.UnixMilli(k.OpenTime),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
		Final:  true,
	}, nil
}

func wsKlineToCandle(event *binance.WsKlineEvent) (types.Candle, error) {
	k := event.Kline

	open, err := parsePrice(k.Open)
	if err != nil {
		return types.Candle{}, err
	}

	high, err := parsePrice(k.High)
	if err != nil {
		return types.Candle{}, err
	}

	low, err := parsePrice(k.Low)
	if err != nil {
		return types.Candle{}, err
	}

	closePrice, err := parsePrice(k.Close)
	if err != nil {
		return types.Candle{}, err
	}

	volume, err := parsePrice(k.Volume)
	if err != nil {
		return types.Candle{}, err
	}

	return types.Candle{
		Symbol: event.Symbol,
		Time:   time.UnixMilli(k.StartTime),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
		Final:  k.IsFinal,
	}, nil
}

func parsePrice(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err,
			"could not parse value %q", raw)
	}

	return v, nil
}
