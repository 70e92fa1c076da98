package talib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRSI(t *testing.T) {
	cases := []*struct {
		desc     string
		closes   []float64
		period   int
		expected float64
	}{
		{
			desc:     "too short window returns neutral",
			closes:   []float64{1, 2},
			period:   14,
			expected: 50,
		},
		{
			desc:     "all gains saturates at 100",
			closes:   []float64{1, 2, 3, 4, 5, 6},
			period:   2,
			expected: 100,
		},
	}

	for _, test := range cases {
		t.Run(test.desc, func(t *testing.T) {
			assert.InDelta(t, test.expected, RSI(test.closes, test.period), 1e-9)
		})
	}
}

func TestRSIRange(t *testing.T) {
	closes := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.3, 46.2, 46.0, 46.3, 46.5}
	rsi := RSI(closes, 14)
	assert.True(t, rsi >= 0 && rsi <= 100)
	assert.True(t, rsi > 50, "uptrend closes should score above neutral")
}

func TestSMAAndEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 4, SMA(values, 3), 1e-9)
	assert.True(t, math.IsNaN(SMA(values, 6)))
	assert.True(t, math.IsNaN(EMA(values, 6)))

	ema := EMA(values, 3)
	assert.False(t, math.IsNaN(ema))
	assert.True(t, ema > SMA(values, 5), "ema should lean toward recent values in an uptrend")
}

func TestBollinger(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10}
	bands := Bollinger(closes, 5, 2)

	assert.InDelta(t, 10, bands.Mid, 1e-9)
	assert.InDelta(t, 10, bands.Upper, 1e-9)
	assert.InDelta(t, 10, bands.Lower, 1e-9)

	closes = []float64{10, 12, 14, 12, 10}
	bands = Bollinger(closes, 5, 2)
	assert.True(t, bands.Upper > bands.Mid)
	assert.True(t, bands.Lower < bands.Mid)
	assert.InDelta(t, bands.Mid-bands.Lower, bands.Upper-bands.Mid, 1e-9)
}

func TestATR(t *testing.T) {
	highs := []float64{11, 12, 13, 14, 15}
	lows := []float64{9, 10, 11, 12, 13}
	closes := []float64{10, 11, 12, 13, 14}

	atr := ATR(highs, lows, closes, 3)
	assert.False(t, math.IsNaN(atr))
	assert.True(t, atr > 0)

	assert.True(t, math.IsNaN(ATR(highs, lows, closes, 5)))
}

func TestMACD(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	result := MACD(closes, 12, 26, 9)
	assert.True(t, result.MACD > 0, "uptrend keeps the macd line positive")
	assert.InDelta(t, result.MACD-result.Signal, result.Hist, 1e-9)
}

func TestMaxMin(t *testing.T) {
	values := []float64{1, 3, 2, 5, 4}

	max := Max(3, values)
	assert.Equal(t, 5.0, max[len(max)-1])

	min := Min(3, values)
	assert.Equal(t, 2.0, min[len(min)-1])
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.95, Clamp(1.2, 0, 0.95))
	assert.Equal(t, 0.0, Clamp(-0.2, 0, 0.95))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 0.95))
}
