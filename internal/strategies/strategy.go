package strategies

import (
	"errors"

	"github.com/anvh2/sentiment-trading/internal/models"
)

const (
	KindRSIPullback       = "rsi_pullback"
	KindQuantumOscillator = "quantum_oscillator"
	KindNeuralConfidence  = "neural_confidence"
	KindBollingerBreakout = "bollinger_breakout"
)

var (
	ErrUnknownKind       = errors.New("strategies: unknown kind")
	ErrDuplicateStrategy = errors.New("strategies: already registered")
	ErrNoSymbols         = errors.New("strategies: no symbols")
)

// Strategy evaluates one tick window into a technical signal. Evaluate
// must be a function of the window alone so that replaying a tick with
// an unchanged window yields an identical signal.
type Strategy interface {
	Kind() string
	Lookback() int
	Evaluate(ticks []*models.Tick) *models.TechnicalSignal
}

// Config describes one strategy registration. Params are untyped as
// read from configuration; the kind's schema types and validates them.
type Config struct {
	ID      string                 `mapstructure:"id"`
	Name    string                 `mapstructure:"name"`
	Kind    string                 `mapstructure:"kind"`
	Symbols []string               `mapstructure:"symbols"`
	Params  map[string]interface{} `mapstructure:"params"`
	Active  bool                   `mapstructure:"active"`
}

// Instance is a registered strategy bound to its symbols.
type Instance struct {
	ID      string
	Name    string
	Kind    string
	Symbols []string
	Active  bool

	Strategy Strategy
}

func holdSignal(id, symbol string, ts int64, indicators map[string]float64, reason string) *models.TechnicalSignal {
	return &models.TechnicalSignal{
		StrategyID: id,
		Symbol:     symbol,
		Action:     models.ActionHold,
		Confidence: 0.1,
		Indicators: indicators,
		Reason:     reason,
		Time:       ts,
	}
}
