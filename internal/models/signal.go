package models

import "encoding/json"

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionSkip Action = "SKIP"
)

// TechnicalSignal is the output of one strategy evaluation on one tick.
type TechnicalSignal struct {
	StrategyID string             `json:"strategy_id"`
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Time       int64              `json:"time"`
}

func (s *TechnicalSignal) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// EnhancedSignal fuses a technical signal with the aggregated sentiment
// available at fusion time. Immutable once emitted.
type EnhancedSignal struct {
	ID                  string           `json:"id"`
	Technical           *TechnicalSignal `json:"technical"`
	SentimentScore      float64          `json:"sentiment_score"`
	SentimentConfidence float64          `json:"sentiment_confidence"`
	Conflict            bool             `json:"conflict"`
	FinalAction         Action           `json:"final_action"`
	FinalConfidence     float64          `json:"final_confidence"`
	ConfidenceBoost     float64          `json:"confidence_boost"`
	Rationale           string           `json:"rationale,omitempty"`
	Time                int64            `json:"time"`

	// execution outcome, filled by the trader before persisting
	WasExecuted   bool   `json:"was_executed"`
	ExecuteReason string `json:"execute_reason,omitempty"`
	ExecutionTime int64  `json:"execution_time,omitempty"`
	TradeID       string `json:"trade_id,omitempty"`
}

func (s *EnhancedSignal) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}
