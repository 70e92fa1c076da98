package strategies

import (
	"fmt"

	"github.com/anvh2/sentiment-trading/internal/cache/window"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
)

type QuantumOscillatorParams struct {
	FastPeriod        int     `mapstructure:"fast_period"`
	SlowPeriod        int     `mapstructure:"slow_period"`
	SignalPeriod      int     `mapstructure:"signal_period"`
	OverboughtLevel   float64 `mapstructure:"overbought_level"`
	OversoldLevel     float64 `mapstructure:"oversold_level"`
	MomentumThreshold float64 `mapstructure:"momentum_threshold"`
	VolumeMultiplier  float64 `mapstructure:"volume_multiplier"`
}

// QuantumOscillator trades MACD histogram zero crossings confirmed by
// the fast EMA's position inside the window range and a volume surge.
type QuantumOscillator struct {
	id     string
	params QuantumOscillatorParams
}

func NewQuantumOscillator(id string, params QuantumOscillatorParams) *QuantumOscillator {
	return &QuantumOscillator{id: id, params: params}
}

func (s *QuantumOscillator) Kind() string { return KindQuantumOscillator }

func (s *QuantumOscillator) Lookback() int {
	return s.params.SlowPeriod + s.params.SignalPeriod + 1
}

func (s *QuantumOscillator) Evaluate(ticks []*models.Tick) *models.TechnicalSignal {
	symbol, ts := head(ticks)
	closes := window.Closes(ticks)
	volumes := window.Volumes(ticks)

	macd := talib.MACD(closes, s.params.FastPeriod, s.params.SlowPeriod, s.params.SignalPeriod)
	prev := talib.MACDResult{}
	if len(closes) > 1 {
		prev = talib.MACD(closes[:len(closes)-1], s.params.FastPeriod, s.params.SlowPeriod, s.params.SignalPeriod)
	}

	emaPos := s.emaPosition(closes)
	volumeSurge := s.volumeSurge(volumes)

	indicators := map[string]float64{
		"macd":      macd.MACD,
		"signal":    macd.Signal,
		"hist":      macd.Hist,
		"prev_hist": prev.Hist,
		"ema_pos":   emaPos,
	}

	if len(closes) < s.Lookback() {
		return holdSignal(s.id, symbol, ts, indicators, "window warming up")
	}

	confidence := talib.Clamp(abs(macd.Hist)/s.params.MomentumThreshold, 0, 0.95)

	crossedUp := prev.Hist <= 0 && macd.Hist > 0
	crossedDown := prev.Hist >= 0 && macd.Hist < 0

	if crossedUp && emaPos <= s.params.OversoldLevel && volumeSurge {
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionBuy,
			Confidence: confidence,
			Indicators: indicators,
			Reason:     fmt.Sprintf("hist crossed up at %.4f in oversold range", macd.Hist),
			Time:       ts,
		}
	}

	if crossedDown && emaPos >= s.params.OverboughtLevel && volumeSurge {
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionSell,
			Confidence: confidence,
			Indicators: indicators,
			Reason:     fmt.Sprintf("hist crossed down at %.4f in overbought range", macd.Hist),
			Time:       ts,
		}
	}

	return holdSignal(s.id, symbol, ts, indicators, "no momentum crossing")
}

// emaPosition scales the fast EMA's place inside the window's price
// range to 0..100 so the oversold/overbought levels apply to it.
func (s *QuantumOscillator) emaPosition(closes []float64) float64 {
	if len(closes) == 0 {
		return 50
	}

	ema := talib.EMA(closes, s.params.FastPeriod)
	highest := talib.Max(len(closes), closes)
	lowest := talib.Min(len(closes), closes)

	hi := highest[len(highest)-1]
	lo := lowest[len(lowest)-1]
	if hi == lo {
		return 50
	}

	return talib.Clamp(100*(ema-lo)/(hi-lo), 0, 100)
}

func (s *QuantumOscillator) volumeSurge(volumes []float64) bool {
	if len(volumes) == 0 {
		return false
	}

	current := volumes[len(volumes)-1]
	return current > talib.Mean(volumes)*s.params.VolumeMultiplier
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
