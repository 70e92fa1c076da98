package strategies

import (
	"fmt"

	"github.com/anvh2/sentiment-trading/internal/cache/window"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
)

type BollingerBreakoutParams struct {
	SMALength       int     `mapstructure:"sma_length"`
	UBOffset        float64 `mapstructure:"ub_offset"`
	LBOffset        float64 `mapstructure:"lb_offset"`
	UseRSIFilter    bool    `mapstructure:"use_rsi_filter"`
	UseVolumeFilter bool    `mapstructure:"use_volume_filter"`
}

// BollingerBreakout trades closes beyond the bands, optionally filtered
// by RSI side and a volume surge.
type BollingerBreakout struct {
	id     string
	params BollingerBreakoutParams
}

func NewBollingerBreakout(id string, params BollingerBreakoutParams) *BollingerBreakout {
	return &BollingerBreakout{id: id, params: params}
}

func (s *BollingerBreakout) Kind() string { return KindBollingerBreakout }

func (s *BollingerBreakout) Lookback() int {
	return s.params.SMALength + 1
}

func (s *BollingerBreakout) Evaluate(ticks []*models.Tick) *models.TechnicalSignal {
	symbol, ts := head(ticks)
	closes := window.Closes(ticks)
	volumes := window.Volumes(ticks)

	upper := talib.Bollinger(closes, s.params.SMALength, s.params.UBOffset)
	lower := talib.Bollinger(closes, s.params.SMALength, s.params.LBOffset)
	rsi := talib.RSI(closes, 14)

	indicators := map[string]float64{
		"mid":   upper.Mid,
		"upper": upper.Upper,
		"lower": lower.Lower,
		"rsi":   rsi,
	}

	if len(closes) < s.params.SMALength {
		return holdSignal(s.id, symbol, ts, indicators, "window warming up")
	}

	price := closes[len(closes)-1]
	volumeOK := !s.params.UseVolumeFilter || len(volumes) == 0 ||
		volumes[len(volumes)-1] > talib.Mean(volumes)

	if price > upper.Upper {
		if s.params.UseRSIFilter && rsi <= 50 {
			return holdSignal(s.id, symbol, ts, indicators, "breakout without RSI support")
		}
		if !volumeOK {
			return holdSignal(s.id, symbol, ts, indicators, "breakout without volume")
		}

		band := upper.Upper - upper.Mid
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionBuy,
			Confidence: breakoutConfidence(price-upper.Mid, band),
			Indicators: indicators,
			Reason:     fmt.Sprintf("close %.4f above upper band %.4f", price, upper.Upper),
			Time:       ts,
		}
	}

	if price < lower.Lower {
		if s.params.UseRSIFilter && rsi >= 50 {
			return holdSignal(s.id, symbol, ts, indicators, "breakdown without RSI support")
		}
		if !volumeOK {
			return holdSignal(s.id, symbol, ts, indicators, "breakdown without volume")
		}

		band := lower.Mid - lower.Lower
		return &models.TechnicalSignal{
			StrategyID: s.id,
			Symbol:     symbol,
			Action:     models.ActionSell,
			Confidence: breakoutConfidence(lower.Mid-price, band),
			Indicators: indicators,
			Reason:     fmt.Sprintf("close %.4f below lower band %.4f", price, lower.Lower),
			Time:       ts,
		}
	}

	return holdSignal(s.id, symbol, ts, indicators, "inside bands")
}

// breakoutConfidence scales the distance beyond the band against the
// band width.
func breakoutConfidence(distance, band float64) float64 {
	if band <= 0 {
		return 0.5
	}
	return talib.Clamp((distance-band)/band, 0, 0.95)
}
