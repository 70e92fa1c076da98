package orderbook

import (
	"math"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
)

const whaleUrgencyThreshold = 60

// Derive computes the intelligence metrics for one snapshot. The
// structural metrics are always derived; confidence collapses to zero
// when the snapshot is stale.
func Derive(snapshot *models.OrderBookSnapshot, stale bool) *models.OrderBookIntelligence {
	intel := &models.OrderBookIntelligence{
		Symbol: snapshot.Symbol,
		Time:   snapshot.Time,
	}

	if len(snapshot.Bids) == 0 || len(snapshot.Asks) == 0 {
		intel.EntrySignal = models.EntryNeutral
		intel.Timeframe = models.TimeframeMedium
		return intel
	}

	depth := 0.0
	for _, level := range snapshot.Bids {
		depth += level.Size
	}
	for _, level := range snapshot.Asks {
		depth += level.Size
	}

	mid := (snapshot.Bids[0].Price + snapshot.Asks[0].Price) / 2
	spreadPct := 0.0
	if mid > 0 {
		spreadPct = snapshot.Spread / mid * 100
	}

	intel.LiquidityScore = liquidityScore(depth, spreadPct, len(snapshot.Bids)+len(snapshot.Asks))
	intel.WhaleActivity = talib.Clamp(15*float64(snapshot.LargeBidCount+snapshot.LargeAskCount), 0, 100)

	wallBias := 0.0
	switch snapshot.WallPressure {
	case models.WallPressureBuy:
		wallBias = 1
	case models.WallPressureSell:
		wallBias = -1
	}

	intel.MarketPressure = talib.Clamp(
		50*snapshot.DepthImbalance+25*wallBias+5*float64(snapshot.LargeBidCount-snapshot.LargeAskCount),
		-100, 100,
	)

	flow := 60*snapshot.DepthImbalance + 8*float64(snapshot.LargeBidCount-snapshot.LargeAskCount)
	if intel.WhaleActivity >= whaleUrgencyThreshold {
		flow *= 1.3
	}
	intel.InstitutionalFlow = talib.Clamp(flow, -100, 100)

	combined := (intel.MarketPressure + intel.InstitutionalFlow) / 2

	switch {
	case combined >= 60:
		intel.EntrySignal = models.EntryStrongBuy
	case combined >= 25:
		intel.EntrySignal = models.EntryBuy
	case combined <= -60:
		intel.EntrySignal = models.EntryStrongSell
	case combined <= -25:
		intel.EntrySignal = models.EntrySell
	default:
		intel.EntrySignal = models.EntryNeutral
	}

	switch {
	case math.Abs(combined) >= 60:
		intel.Timeframe = models.TimeframeScalp
	case math.Abs(combined) >= 40:
		intel.Timeframe = models.TimeframeShort
	default:
		intel.Timeframe = models.TimeframeMedium
	}

	switch intel.Timeframe {
	case models.TimeframeScalp:
		intel.StopLossPct = 0.01
	case models.TimeframeShort:
		intel.StopLossPct = 0.02
	default:
		intel.StopLossPct = 0.03
	}
	intel.TakeProfitPct = intel.StopLossPct * 2

	if stale {
		intel.ConfidenceScore = 0
		intel.PositionSizePct = 0
		return intel
	}

	intel.ConfidenceScore = talib.Clamp(30+intel.LiquidityScore*0.3+math.Abs(combined)*0.5, 0, 100)
	intel.PositionSizePct = talib.Clamp(intel.ConfidenceScore/10, 0, 10)

	return intel
}

// liquidityScore rewards depth and tight spreads, penalizes the market
// impact a wide book implies.
func liquidityScore(depth, spreadPct float64, levels int) float64 {
	depthBonus := depth / (depth + 200)

	spreadBonus := 0.0
	switch {
	case spreadPct < 0.05:
		spreadBonus = 10
	case spreadPct < 0.1:
		spreadBonus = 5
	}

	impactPenalty := talib.Clamp(10*spreadPct, 0, 20)
	if levels < 10 {
		impactPenalty += 5
	}

	return talib.Clamp(50+30*depthBonus+spreadBonus-impactPenalty, 0, 100)
}
