package marketdata

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// StreamConfig contains the configuration for a live candle stream.
type StreamConfig struct {
	Symbols  []string `json:"symbols" yaml:"symbols" validate:"required,min=1"`
	Interval string   `json:"interval" yaml:"interval" validate:"required,oneof=1s 1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w 1M"`

	// ReconnectBase is the initial backoff delay after a failed connect.
	ReconnectBase time.Duration `json:"reconnect_base" yaml:"reconnect_base"`
	// ReconnectMax caps the doubling backoff delay.
	ReconnectMax time.Duration `json:"reconnect_max" yaml:"reconnect_max"`
	// MaxAttempts bounds consecutive failed connection attempts before the
	// stream gives up with a ReconnectExhausted error.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

const (
	defaultReconnectBase = time.Second
	defaultReconnectMax  = time.Minute
	defaultMaxAttempts   = 10
)

// Validate checks the config and fills in reconnection defaults.
func (c *StreamConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid stream config", err)
	}

	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}

	if c.ReconnectMax <= 0 {
		c.ReconnectMax = defaultReconnectMax
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	return nil
}
