package strategies

import (
	"fmt"
	"math"

	"github.com/anvh2/sentiment-trading/internal/cache/window"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
)

type RSIPullbackParams struct {
	Lookback       int     `mapstructure:"lookback"`
	LowerBarrier   float64 `mapstructure:"lower_barrier"`
	LowerThreshold float64 `mapstructure:"lower_threshold"`
	UpperBarrier   float64 `mapstructure:"upper_barrier"`
	UpperThreshold float64 `mapstructure:"upper_threshold"`
	MALength       int     `mapstructure:"ma_length"`
	ATRMultSL      float64 `mapstructure:"atr_mult_sl"`
	ATRMultTP      float64 `mapstructure:"atr_mult_tp"`
}

// RSIPullback buys deep oversold readings and cross-up recoveries
// through the lower barrier, sells the mirror at the upper barrier.
type RSIPullback struct {
	id     string
	params RSIPullbackParams
}

func NewRSIPullback(id string, params RSIPullbackParams) *RSIPullback {
	return &RSIPullback{id: id, params: params}
}

func (s *RSIPullback) Kind() string { return KindRSIPullback }

func (s *RSIPullback) Lookback() int {
	if s.params.MALength > s.params.Lookback+1 {
		return s.params.MALength
	}
	return s.params.Lookback + 1
}

func (s *RSIPullback) Evaluate(ticks []*models.Tick) *models.TechnicalSignal {
	symbol, ts := head(ticks)
	closes := window.Closes(ticks)

	rsi := talib.RSI(closes, s.params.Lookback)
	prevRSI := 50.0
	if len(closes) > 1 {
		prevRSI = talib.RSI(closes[:len(closes)-1], s.params.Lookback)
	}

	sma := talib.SMA(closes, s.params.MALength)
	atr := talib.ATR(closes, closes, closes, s.params.Lookback)

	indicators := map[string]float64{
		"rsi":      rsi,
		"prev_rsi": prevRSI,
	}
	// undefined (NaN) indicators are left out so replays compare equal
	if !math.IsNaN(sma) {
		indicators["sma"] = sma
	}
	if !math.IsNaN(atr) {
		indicators["atr"] = atr
	}

	if len(closes) < s.params.Lookback+1 {
		return holdSignal(s.id, symbol, ts, indicators, "window warming up")
	}

	price := closes[len(closes)-1]
	aboveMA := math.IsNaN(sma) || price > sma
	belowMA := math.IsNaN(sma) || price < sma

	switch {
	case rsi <= s.params.LowerBarrier:
		confidence := s.barrierConfidence(s.params.LowerBarrier-rsi, s.params.LowerBarrier-s.params.LowerThreshold)
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionBuy,
			Confidence: confidence,
			Indicators: indicators,
			Reason:     fmt.Sprintf("RSI oversold at %.2f", rsi),
			Time:       ts,
		}

	case prevRSI < s.params.LowerBarrier && rsi >= s.params.LowerBarrier && aboveMA:
		confidence := s.barrierConfidence(rsi-s.params.LowerBarrier, s.params.LowerBarrier-s.params.LowerThreshold)
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionBuy,
			Confidence: confidence,
			Indicators: indicators,
			Reason:     fmt.Sprintf("RSI recovery at %.2f", rsi),
			Time:       ts,
		}

	case rsi >= s.params.UpperBarrier:
		confidence := s.barrierConfidence(rsi-s.params.UpperBarrier, s.params.UpperThreshold-s.params.UpperBarrier)
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionSell,
			Confidence: confidence,
			Indicators: indicators,
			Reason:     fmt.Sprintf("RSI overbought at %.2f", rsi),
			Time:       ts,
		}

	case prevRSI > s.params.UpperBarrier && rsi <= s.params.UpperBarrier && belowMA:
		confidence := s.barrierConfidence(s.params.UpperBarrier-rsi, s.params.UpperThreshold-s.params.UpperBarrier)
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionSell,
			Confidence: confidence,
			Indicators: indicators,
			Reason:     fmt.Sprintf("RSI rejection at %.2f", rsi),
			Time:       ts,
		}
	}

	return holdSignal(s.id, symbol, ts, indicators, fmt.Sprintf("RSI neutral at %.2f", rsi))
}

// barrierConfidence grows linearly from 0.5 at the barrier toward 0.95
// across the threshold band.
func (s *RSIPullback) barrierConfidence(distance, band float64) float64 {
	if band <= 0 {
		band = 1
	}
	return talib.Clamp(0.5+0.5*distance/band, 0.5, 0.95)
}

func head(ticks []*models.Tick) (string, int64) {
	if len(ticks) == 0 {
		return "", 0
	}
	last := ticks[len(ticks)-1]
	return last.Symbol, last.Time
}
