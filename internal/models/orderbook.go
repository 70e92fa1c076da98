package models

import "encoding/json"

type WallPressure string

const (
	WallPressureBuy  WallPressure = "BUY"
	WallPressureSell WallPressure = "SELL"
	WallPressureNone WallPressure = "NONE"
)

// PriceLevel is a single bid or ask level.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookSnapshot is a consistent point-in-time copy of the depth
// state for one symbol. Bids are ordered by price descending, asks
// ascending. Readers always receive a full replacement, never a
// half-applied update.
type OrderBookSnapshot struct {
	Symbol         string       `json:"symbol"`
	Time           int64        `json:"time"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	Spread         float64      `json:"spread"`
	DepthImbalance float64      `json:"depth_imbalance"` // [-1, 1]
	LargeBidCount  int          `json:"large_bid_count"`
	LargeAskCount  int          `json:"large_ask_count"`
	WallPressure   WallPressure `json:"wall_pressure"`
	Stale          bool         `json:"stale,omitempty"`
}

func (s *OrderBookSnapshot) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

type EntrySignal string

const (
	EntryStrongBuy  EntrySignal = "STRONG_BUY"
	EntryBuy        EntrySignal = "BUY"
	EntryNeutral    EntrySignal = "NEUTRAL"
	EntrySell       EntrySignal = "SELL"
	EntryStrongSell EntrySignal = "STRONG_SELL"
)

type Timeframe string

const (
	TimeframeScalp  Timeframe = "SCALP"
	TimeframeShort  Timeframe = "SHORT"
	TimeframeMedium Timeframe = "MEDIUM"
)

// OrderBookIntelligence is the set of metrics derived from one depth
// snapshot.
type OrderBookIntelligence struct {
	Symbol            string      `json:"symbol"`
	Time              int64       `json:"time"`
	LiquidityScore    float64     `json:"liquidity_score"`    // [0, 100]
	MarketPressure    float64     `json:"market_pressure"`    // [-100, 100]
	InstitutionalFlow float64     `json:"institutional_flow"` // [-100, 100]
	WhaleActivity     float64     `json:"whale_activity"`     // [0, 100]
	EntrySignal       EntrySignal `json:"entry_signal"`
	ConfidenceScore   float64     `json:"confidence_score"` // [0, 100]
	Timeframe         Timeframe   `json:"timeframe"`
	StopLossPct       float64     `json:"stop_loss_pct"`
	TakeProfitPct     float64     `json:"take_profit_pct"`
	PositionSizePct   float64     `json:"position_size_pct"`
}

func (i *OrderBookIntelligence) String() string {
	b, _ := json.Marshal(i)
	return string(b)
}

// Score converts the entry signal to the [-1, 1] sentiment score space.
func (i *OrderBookIntelligence) Score() float64 {
	switch i.EntrySignal {
	case EntryStrongBuy:
		return 0.8
	case EntryBuy:
		return 0.4
	case EntrySell:
		return -0.4
	case EntryStrongSell:
		return -0.8
	default:
		return 0
	}
}
