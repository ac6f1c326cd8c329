package engine

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
	"github.com/rxtech-lab/chartflow/pkg/marketdata"
)

// IndicatorConfig declares one indicator to compute.
type IndicatorConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Inputs map[string]any `yaml:"inputs"`
}

// Config is the YAML configuration of a streaming engine run.
type Config struct {
	Symbols   []string `yaml:"symbols" validate:"required,min=1"`
	Timeframe string   `yaml:"timeframe" validate:"required,oneof=1s 1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w 1M"`

	// HistoryLimit is the number of finalized candles loaded to seed
	// indicator state on every connect. Defaults to 500.
	HistoryLimit int `yaml:"history_limit" validate:"omitempty,min=1"`

	Indicators []IndicatorConfig `yaml:"indicators" validate:"required,min=1,dive"`

	ReconnectBase time.Duration `yaml:"reconnect_base"`
	ReconnectMax  time.Duration `yaml:"reconnect_max"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"failed to read config file %s", path)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	var config Config

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaultHistoryLimit
	}

	return &config, nil
}

// Specs converts the configured indicators into specs bound to the
// configured timeframe.
func (c *Config) Specs() []types.IndicatorSpec {
	specs := make([]types.IndicatorSpec, 0, len(c.Indicators))

	for _, ind := range c.Indicators {
		specs = append(specs, types.IndicatorSpec{
			Name:      types.IndicatorType(ind.Name),
			Inputs:    ind.Inputs,
			Timeframe: c.Timeframe,
		})
	}

	return specs
}

// StreamConfig derives the live feed configuration.
func (c *Config) StreamConfig() marketdata.StreamConfig {
	return marketdata.StreamConfig{
		Symbols:       c.Symbols,
		Interval:      c.Timeframe,
		ReconnectBase: c.ReconnectBase,
		ReconnectMax:  c.ReconnectMax,
		MaxAttempts:   c.MaxAttempts,
	}
}
