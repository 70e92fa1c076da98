package models

import "encoding/json"

// Sentiment sources known to the aggregator.
const (
	SourceMicroblog = "microblog"
	SourceForum     = "forum"
	SourceNews      = "news"
	SourceOnChain   = "onchain"
	SourceOrderBook = "orderbook"
)

// SourceReading is the normalized output of a single fetcher invocation.
type SourceReading struct {
	Source     string                 `json:"source"`
	Symbol     string                 `json:"symbol"`
	Score      float64                `json:"score"`      // [-1, 1]
	Confidence float64                `json:"confidence"` // [0, 1]
	Volume     float64                `json:"volume"`
	ProducedAt int64                  `json:"produced_at"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
}

func (r *SourceReading) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}

type SentimentCategory string

const (
	CategoryExtremeBullish SentimentCategory = "EXTREME_BULLISH"
	CategoryBullish        SentimentCategory = "BULLISH"
	CategoryNeutral        SentimentCategory = "NEUTRAL"
	CategoryBearish        SentimentCategory = "BEARISH"
	CategoryExtremeBearish SentimentCategory = "EXTREME_BEARISH"
)

type SentimentAction string

const (
	SentimentStrongBuy  SentimentAction = "STRONG_BUY"
	SentimentBuy        SentimentAction = "BUY"
	SentimentHold       SentimentAction = "HOLD"
	SentimentSell       SentimentAction = "SELL"
	SentimentStrongSell SentimentAction = "STRONG_SELL"
	SentimentWait       SentimentAction = "WAIT"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// SentimentSignal is the trading recommendation derived from one
// aggregation cycle.
type SentimentSignal struct {
	Action     SentimentAction `json:"action"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason,omitempty"`
	RiskLevel  RiskLevel       `json:"risk_level"`
}

// AggregatedSentiment is the fan-in result over all sources for one
// symbol under the current source weights.
type AggregatedSentiment struct {
	Symbol            string                    `json:"symbol"`
	Time              int64                     `json:"time"`
	OverallScore      float64                   `json:"overall_score"`      // [-1, 1]
	OverallConfidence float64                   `json:"overall_confidence"` // [0, 1]
	Category          SentimentCategory         `json:"category"`
	PerSource         map[string]*SourceReading `json:"per_source"`
	CriticalEvents    []*CriticalEvent          `json:"critical_events,omitempty"`
	TradingSignal     *SentimentSignal          `json:"trading_signal"`
}

func (s *AggregatedSentiment) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// HasCritical reports whether a critical event of the given kind exists
// in this cycle.
func (s *AggregatedSentiment) HasCritical(kind EventKind) bool {
	if s == nil {
		return false
	}
	for _, e := range s.CriticalEvents {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

type EventKind string

const (
	EventPartnership EventKind = "PARTNERSHIP"
	EventHack        EventKind = "HACK"
	EventRegulatory  EventKind = "REGULATORY"
	EventListing     EventKind = "LISTING"
	EventWhaleMove   EventKind = "WHALE_MOVE"
)

type EventSeverity string

const (
	SeverityLow      EventSeverity = "LOW"
	SeverityMedium   EventSeverity = "MEDIUM"
	SeverityHigh     EventSeverity = "HIGH"
	SeverityCritical EventSeverity = "CRITICAL"
)

// CriticalEvent is a high-impact discrete occurrence extracted from a
// source reading. Impact is scaled to [-10, 10].
type CriticalEvent struct {
	Kind        EventKind     `json:"kind"`
	Severity    EventSeverity `json:"severity"`
	Impact      float64       `json:"impact"`
	Source      string        `json:"source"`
	Time        int64         `json:"time"`
	Description string        `json:"description,omitempty"`
}

func (e *CriticalEvent) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// MarketContext is the coarse market state the aggregator crosses with
// the sentiment category when deriving a trading signal.
type MarketContext struct {
	Trend      string `json:"trend"`      // UP, DOWN, SIDEWAYS
	Volatility string `json:"volatility"` // NORMAL, HIGH, EXTREME
	Volume     string `json:"volume"`     // LOW, NORMAL, HIGH, EXTREME
}
