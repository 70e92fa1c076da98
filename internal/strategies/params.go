package strategies

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// field bounds one scalar parameter of a strategy kind.
type field struct {
	name string
	def  float64
	min  float64
	max  float64
}

// boolField has no bounds, only a default.
type boolField struct {
	name string
	def  bool
}

type schema struct {
	fields []field
	bools  []boolField
}

var schemas = map[string]*schema{
	KindRSIPullback: {
		fields: []field{
			{name: "lookback", def: 14, min: 2, max: 100},
			{name: "lower_barrier", def: 30, min: 5, max: 50},
			{name: "lower_threshold", def: 20, min: 1, max: 49},
			{name: "upper_barrier", def: 70, min: 50, max: 95},
			{name: "upper_threshold", def: 80, min: 51, max: 99},
			{name: "ma_length", def: 50, min: 2, max: 200},
			{name: "atr_mult_sl", def: 1.5, min: 0.1, max: 10},
			{name: "atr_mult_tp", def: 3, min: 0.1, max: 20},
		},
	},
	KindQuantumOscillator: {
		fields: []field{
			{name: "fast_period", def: 12, min: 2, max: 50},
			{name: "slow_period", def: 26, min: 5, max: 100},
			{name: "signal_period", def: 9, min: 2, max: 50},
			{name: "overbought_level", def: 70, min: 50, max: 100},
			{name: "oversold_level", def: 30, min: 0, max: 50},
			{name: "momentum_threshold", def: 0.5, min: 0.001, max: 100},
			{name: "volume_multiplier", def: 1.5, min: 1, max: 10},
		},
	},
	KindNeuralConfidence: {
		fields: []field{
			{name: "neural_layers", def: 3, min: 1, max: 5},
			{name: "learning_rate", def: 0.01, min: 0.0001, max: 1},
			{name: "lookback_window", def: 20, min: 5, max: 200},
			{name: "confidence_threshold", def: 0.6, min: 0.05, max: 0.95},
			{name: "adaptation_period", def: 50, min: 5, max: 1000},
			{name: "risk_multiplier", def: 1, min: 0.1, max: 3},
		},
	},
	KindBollingerBreakout: {
		fields: []field{
			{name: "sma_length", def: 20, min: 2, max: 200},
			{name: "ub_offset", def: 2, min: 0.5, max: 5},
			{name: "lb_offset", def: 2, min: 0.5, max: 5},
		},
		bools: []boolField{
			{name: "use_rsi_filter", def: true},
			{name: "use_volume_filter", def: true},
		},
	},
}

// normalize fills defaults and clamps out-of-range values, returning
// one warning per clamped field.
func (s *schema) normalize(params map[string]interface{}) (map[string]interface{}, []string) {
	out := make(map[string]interface{}, len(s.fields)+len(s.bools))
	warnings := make([]string, 0)

	for _, f := range s.fields {
		value := f.def

		if raw, ok := params[f.name]; ok {
			parsed, err := toFloat(raw)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v, default %v applied", f.name, err, f.def))
			} else {
				value = parsed
			}
		}

		if value < f.min {
			warnings = append(warnings, fmt.Sprintf("%s: %v below %v, clamped", f.name, value, f.min))
			value = f.min
		}
		if value > f.max {
			warnings = append(warnings, fmt.Sprintf("%s: %v above %v, clamped", f.name, value, f.max))
			value = f.max
		}

		out[f.name] = value
	}

	for _, f := range s.bools {
		value := f.def
		if raw, ok := params[f.name]; ok {
			if b, ok := raw.(bool); ok {
				value = b
			} else {
				warnings = append(warnings, fmt.Sprintf("%s: not a bool, default %v applied", f.name, f.def))
			}
		}
		out[f.name] = value
	}

	return out, warnings
}

func toFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("value %v is not numeric", raw)
	}
}

// decode normalizes params against the kind's schema and decodes them
// into the strategy's typed parameter struct.
func decode(kind string, params map[string]interface{}, target interface{}) ([]string, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	normalized, warnings := s.normalize(params)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return warnings, err
	}

	if err := decoder.Decode(normalized); err != nil {
		return warnings, err
	}

	return warnings, nil
}
