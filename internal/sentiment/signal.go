package sentiment

import (
	"fmt"
	"math"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
)

const orderBookOverrideConfidence = 0.8

// DeriveSignal maps one aggregation result and the market context to a
// trading recommendation.
func DeriveSignal(result *models.AggregatedSentiment, marketContext *models.MarketContext) *models.SentimentSignal {
	if hasForcedSell(result.CriticalEvents) {
		return &models.SentimentSignal{
			Action:     models.SentimentStrongSell,
			Confidence: 0.9,
			Reason:     "critical event forces defensive exit",
			RiskLevel:  models.RiskExtreme,
		}
	}

	orderBook := result.PerSource[models.SourceOrderBook]
	override := orderBook != nil && orderBook.Confidence > orderBookOverrideConfidence

	if result.OverallConfidence < 0.5 {
		if !override {
			return &models.SentimentSignal{
				Action:     models.SentimentWait,
				Confidence: result.OverallConfidence,
				Reason:     "insufficient cross-source confidence",
				RiskLevel:  models.RiskLow,
			}
		}

		action := models.SentimentBuy
		if orderBook.Score < 0 {
			action = models.SentimentSell
		}

		return &models.SentimentSignal{
			Action:     action,
			Confidence: orderBook.Confidence,
			Reason:     fmt.Sprintf("order-book override: %v", orderBook.Raw["entry_signal"]),
			RiskLevel:  models.RiskMedium,
		}
	}

	if marketContext == nil {
		marketContext = &models.MarketContext{Trend: "SIDEWAYS", Volatility: "NORMAL", Volume: "NORMAL"}
	}

	signal := actionTable(result.Category, marketContext)
	signal.Confidence = result.OverallConfidence

	if orderBook != nil {
		adjustForOrderBook(signal, result.Category, orderBook)
	}

	return signal
}

// actionTable is the fixed category x market-context mapping.
func actionTable(category models.SentimentCategory, c *models.MarketContext) *models.SentimentSignal {
	extremeVol := c.Volatility == "EXTREME"
	highVolume := c.Volume == "HIGH" || c.Volume == "EXTREME"
	downtrend := c.Trend == "DOWN"

	switch category {
	case models.CategoryExtremeBullish:
		if extremeVol {
			return &models.SentimentSignal{
				Action:    models.SentimentBuy,
				Reason:    "extreme bullish read under extreme volatility",
				RiskLevel: models.RiskHigh,
			}
		}
		return &models.SentimentSignal{
			Action:    models.SentimentStrongBuy,
			Reason:    "extreme bullish consensus",
			RiskLevel: models.RiskMedium,
		}

	case models.CategoryBullish:
		if highVolume {
			return &models.SentimentSignal{
				Action:    models.SentimentBuy,
				Reason:    "bullish consensus with volume support",
				RiskLevel: models.RiskMedium,
			}
		}
		return &models.SentimentSignal{
			Action:    models.SentimentHold,
			Reason:    "bullish read without volume confirmation",
			RiskLevel: models.RiskLow,
		}

	case models.CategoryBearish:
		if downtrend {
			return &models.SentimentSignal{
				Action:    models.SentimentSell,
				Reason:    "bearish consensus confirming downtrend",
				RiskLevel: models.RiskMedium,
			}
		}
		return &models.SentimentSignal{
			Action:    models.SentimentHold,
			Reason:    "bearish read against the trend",
			RiskLevel: models.RiskLow,
		}

	case models.CategoryExtremeBearish:
		if extremeVol {
			return &models.SentimentSignal{
				Action:    models.SentimentStrongSell,
				Reason:    "extreme bearish read under extreme volatility",
				RiskLevel: models.RiskExtreme,
			}
		}
		return &models.SentimentSignal{
			Action:    models.SentimentSell,
			Reason:    "extreme bearish consensus",
			RiskLevel: models.RiskHigh,
		}
	}

	return &models.SentimentSignal{
		Action:    models.SentimentHold,
		Reason:    "neutral consensus",
		RiskLevel: models.RiskLow,
	}
}

// adjustForOrderBook reconciles the depth-derived signal with the
// category: disagreement dampens confidence and escalates risk,
// alignment boosts confidence and de-escalates.
func adjustForOrderBook(signal *models.SentimentSignal, category models.SentimentCategory, orderBook *models.SourceReading) {
	distance := math.Abs(orderBook.Score - categoryScore(category))

	switch {
	case distance >= 0.5:
		signal.Confidence *= 0.8
		signal.RiskLevel = escalate(signal.RiskLevel)
		signal.Reason += "; order book disagrees"

	case distance <= 0.2:
		signal.Confidence = talib.Clamp(signal.Confidence*1.1, 0, 0.95)
		signal.RiskLevel = deescalate(signal.RiskLevel)
		signal.Reason += "; order book aligned"
	}
}

func categoryScore(category models.SentimentCategory) float64 {
	switch category {
	case models.CategoryExtremeBullish:
		return 0.8
	case models.CategoryBullish:
		return 0.4
	case models.CategoryBearish:
		return -0.4
	case models.CategoryExtremeBearish:
		return -0.8
	default:
		return 0
	}
}

var riskOrder = []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskExtreme}

func escalate(level models.RiskLevel) models.RiskLevel {
	for i, l := range riskOrder {
		if l == level && i < len(riskOrder)-1 {
			return riskOrder[i+1]
		}
	}
	return level
}

func deescalate(level models.RiskLevel) models.RiskLevel {
	for i, l := range riskOrder {
		if l == level && i > 0 {
			return riskOrder[i-1]
		}
	}
	return level
}
