package strategies

import (
	"testing"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticksFromCloses(closes []float64) []*models.Tick {
	ticks := make([]*models.Tick, len(closes))
	for i, c := range closes {
		ticks[i] = &models.Tick{Symbol: "BTCUSDT", Price: c, Volume: 100, Time: int64(i+1) * 1000}
	}
	return ticks
}

// oversoldCloses produces a sequence whose RSI(2) lands near 15: mostly
// rising, then two sharp drops at the end.
func oversoldCloses() []float64 {
	closes := make([]float64, 20)
	price := 100.0
	for i := 0; i < 18; i++ {
		price += 0.1
		closes[i] = price
	}
	closes[18] = price - 0.35
	closes[19] = price - 0.45
	return closes
}

func TestRSIPullbackOversoldBuy(t *testing.T) {
	params := RSIPullbackParams{}
	_, err := decode(KindRSIPullback, map[string]interface{}{"lookback": 2}, &params)
	require.NoError(t, err)

	s := NewRSIPullback("rsi-test", params)
	signal := s.Evaluate(ticksFromCloses(oversoldCloses()))

	assert.Equal(t, models.ActionBuy, signal.Action)
	assert.Contains(t, signal.Reason, "RSI oversold at")
	assert.True(t, signal.Confidence >= 0.5 && signal.Confidence <= 0.95)
}

func TestRSIPullbackHold(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i%2) // choppy, neutral RSI
	}

	params := RSIPullbackParams{}
	_, err := decode(KindRSIPullback, nil, &params)
	require.NoError(t, err)

	s := NewRSIPullback("rsi-test", params)
	signal := s.Evaluate(ticksFromCloses(closes))

	assert.Equal(t, models.ActionHold, signal.Action)
	assert.InDelta(t, 0.1, signal.Confidence, 1e-9)
}

func TestEvaluateIdempotent(t *testing.T) {
	params := RSIPullbackParams{}
	_, err := decode(KindRSIPullback, map[string]interface{}{"lookback": 2}, &params)
	require.NoError(t, err)

	s := NewRSIPullback("rsi-test", params)
	ticks := ticksFromCloses(oversoldCloses())

	first := s.Evaluate(ticks)
	second := s.Evaluate(ticks)
	assert.Equal(t, first, second)
}

func TestNeuralDeterminism(t *testing.T) {
	params := NeuralConfidenceParams{}
	_, err := decode(KindNeuralConfidence, map[string]interface{}{"lookback_window": 10}, &params)
	require.NoError(t, err)

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	ticks := ticksFromCloses(closes)

	a := NewNeuralConfidence("neural-1", params).Evaluate(ticks)
	b := NewNeuralConfidence("neural-1", params).Evaluate(ticks)
	assert.Equal(t, a, b, "identical id and input stream must produce identical output")

	c := NewNeuralConfidence("neural-2", params).Evaluate(ticks)
	assert.Equal(t, a.Indicators["neural_output"] == c.Indicators["neural_output"], false,
		"different seeds should disagree on a nontrivial input")
}

func TestBollingerBreakoutBuy(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100 + 0.05*float64(i%3)
	}
	closes[len(closes)-1] = 103 // hard breakout above a tight band

	params := BollingerBreakoutParams{}
	_, err := decode(KindBollingerBreakout, map[string]interface{}{"use_rsi_filter": false, "use_volume_filter": false}, &params)
	require.NoError(t, err)

	s := NewBollingerBreakout("bb-test", params)
	signal := s.Evaluate(ticksFromCloses(closes))

	assert.Equal(t, models.ActionBuy, signal.Action)
	assert.True(t, signal.Confidence > 0)
}

func TestRegistryValidation(t *testing.T) {
	registry := NewRegistry(logger.NewDev())

	cases := []*struct {
		desc        string
		config      *Config
		expectedErr error
	}{
		{
			desc: "unknown kind",
			config: &Config{
				ID:      "x",
				Kind:    "momentum",
				Symbols: []string{"BTCUSDT"},
			},
			expectedErr: ErrUnknownKind,
		},
		{
			desc: "no symbols",
			config: &Config{
				ID:   "y",
				Kind: KindRSIPullback,
			},
			expectedErr: ErrNoSymbols,
		},
		{
			desc: "out of range params clamped",
			config: &Config{
				ID:      "z",
				Kind:    KindRSIPullback,
				Symbols: []string{"BTCUSDT"},
				Active:  true,
				Params:  map[string]interface{}{"lookback": 10000},
			},
			expectedErr: nil,
		},
	}

	for _, test := range cases {
		t.Run(test.desc, func(t *testing.T) {
			instance, err := registry.Register(test.config)
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				return
			}

			assert.NoError(t, err)
			impl := instance.Strategy.(*RSIPullback)
			assert.Equal(t, 100, impl.params.Lookback, "lookback must be clamped to its upper bound")
		})
	}
}

func TestRegistryDuplicate(t *testing.T) {
	registry := NewRegistry(logger.NewDev())

	config := &Config{ID: "dup", Kind: KindRSIPullback, Symbols: []string{"BTCUSDT"}, Active: true}
	_, err := registry.Register(config)
	assert.NoError(t, err)

	_, err = registry.Register(config)
	assert.ErrorIs(t, err, ErrDuplicateStrategy)
}

func TestRegistryMaxLookback(t *testing.T) {
	registry := NewRegistry(logger.NewDev())

	_, err := registry.Register(&Config{
		ID: "a", Kind: KindRSIPullback, Symbols: []string{"BTCUSDT"}, Active: true,
		Params: map[string]interface{}{"ma_length": 60},
	})
	assert.NoError(t, err)

	_, err = registry.Register(&Config{
		ID: "b", Kind: KindBollingerBreakout, Symbols: []string{"BTCUSDT"}, Active: true,
		Params: map[string]interface{}{"sma_length": 30},
	})
	assert.NoError(t, err)

	assert.Equal(t, 60, registry.MaxLookback("BTCUSDT"))
	assert.ElementsMatch(t, []string{"BTCUSDT"}, registry.Symbols())
}
