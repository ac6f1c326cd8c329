package engine

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestParseValidConfig() {
	config, err := ParseConfig([]byte(`
symbols:
  - BTCUSDT
  - ETHUSDT
timeframe: 1m
history_limit: 200
indicators:
  - name: sma
    inputs:
      period: 20
  - name: macd
    inputs:
      fast: 12
      slow: 26
      signal: 9
`))
	suite.Require().NoError(err)

	suite.Equal([]string{"BTCUSDT", "ETHUSDT"}, config.Symbols)
	suite.Equal("1m", config.Timeframe)
	suite.Equal(200, config.HistoryLimit)
	suite.Require().Len(config.Indicators, 2)

	specs := config.Specs()
	suite.Require().Len(specs, 2)
	suite.Equal("sma(period=20)@1m", specs[0].ID())
	suite.Equal("macd(fast=12,signal=9,slow=26)@1m", specs[1].ID())
	suite.Equal(types.IndicatorTypeSMA, specs[0].Name)
}

func (suite *ConfigTestSuite) TestHistoryLimitDefaults() {
	config, err := ParseConfig([]byte(`
symbols: [BTCUSDT]
timeframe: 5m
indicators:
  - name: rsi
    inputs:
      period: 14
`))
	suite.Require().NoError(err)
	suite.Equal(defaultHistoryLimit, config.HistoryLimit)
}

func (suite *ConfigTestSuite) TestRejectsMissingSymbols() {
	_, err := ParseConfig([]byte(`
timeframe: 1m
indicators:
  - name: sma
    inputs:
      period: 20
`))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestRejectsUnknownTimeframe() {
	_, err := ParseConfig([]byte(`
symbols: [BTCUSDT]
timeframe: 7m
indicators:
  - name: sma
    inputs:
      period: 20
`))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestRejectsMalformedYAML() {
	_, err := ParseConfig([]byte("symbols: [unterminated"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestStreamConfigDerivation() {
	config, err := ParseConfig([]byte(`
symbols: [BTCUSDT]
timeframe: 1h
max_attempts: 5
indicators:
  - name: ema
    inputs:
      period: 12
`))
	suite.Require().NoError(err)

	stream := config.StreamConfig()
	suite.Equal([]string{"BTCUSDT"}, stream.Symbols)
	suite.Equal("1h", stream.Interval)
	suite.Equal(5, stream.MaxAttempts)
}
