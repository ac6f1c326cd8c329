package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IndicatorType identifies an indicator kind understood by the registry.
type IndicatorType string

const (
	IndicatorTypeSMA            IndicatorType = "sma"
	IndicatorTypeEMA            IndicatorType = "ema"
	IndicatorTypeRSI            IndicatorType = "rsi"
	IndicatorTypeMACD           IndicatorType = "macd"
	IndicatorTypeBollingerBands IndicatorType = "bollinger_bands"
)

// IndicatorSpec is an immutable description of one indicator configuration.
// Two specs with the same semantic configuration always produce the same
// canonical ID regardless of the construction order of Inputs.
type IndicatorSpec struct {
	Name      IndicatorType  `json:"name" yaml:"name"`
	Inputs    map[string]any `json:"inputs" yaml:"inputs"`
	Timeframe string         `json:"timeframe" yaml:"timeframe"`
}

// ID derives the canonical identity of the spec: the lower-cased indicator
// name, the inputs sorted lexicographically by key, and the timeframe
// suffix. The canonical ID is the only allowed way to address an indicator
// instance across batch, incremental, and registry boundaries.
func (s IndicatorSpec) ID() string {
	keys := make([]string, 0, len(s.Inputs))
	for k := range s.Inputs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatInputValue(s.Inputs[k])))
	}

	return fmt.Sprintf("%s(%s)@%s",
		strings.ToLower(string(s.Name)), strings.Join(parts, ","), s.Timeframe)
}

// IntInput reads a required integer input. Numeric inputs may arrive as
// float64 after yaml/json decoding, so whole floats are accepted.
func (s IndicatorSpec) IntInput(key string) (int, bool) {
	raw, ok := s.Inputs[key]
	if !ok {
		return 0, false
	}

	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}

		return int(v), true
	default:
		return 0, false
	}
}

// FloatInput reads a required float input.
func (s IndicatorSpec) FloatInput(key string) (float64, bool) {
	raw, ok := s.Inputs[key]
	if !ok {
		return 0, false
	}

	switch v := raw.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func formatInputValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
