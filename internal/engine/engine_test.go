package engine

import (
	"testing"
	"time"

	"github.com/anvh2/sentiment-trading/internal/bus"
	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cooldown time.Duration) (*Engine, *bus.SignalBus) {
	t.Helper()

	registry := strategies.NewRegistry(logger.NewDev())
	_, err := registry.Register(&strategies.Config{
		ID:      "rsi-1",
		Kind:    strategies.KindRSIPullback,
		Symbols: []string{"BTCUSDT"},
		Active:  true,
		Params:  map[string]interface{}{"lookback": 2, "ma_length": 5},
	})
	require.NoError(t, err)

	signals := bus.New(128)
	return New(logger.NewDev(), registry, signals, cooldown), signals
}

func tick(ts int64, price float64) *models.Tick {
	return &models.Tick{Symbol: "BTCUSDT", Price: price, Volume: 100, Time: ts}
}

func drain(signals *bus.SignalBus) []*models.TechnicalSignal {
	out := make([]*models.TechnicalSignal, 0)
	for {
		signal, ok := signals.Poll()
		if !ok {
			return out
		}
		out = append(out, signal)
	}
}

func TestEverySignalCarriesTickTimestamp(t *testing.T) {
	e, signals := newTestEngine(t, 0)

	for i := int64(1); i <= 30; i++ {
		e.Process(tick(i*1000, 100+float64(i)*0.01))
	}

	emitted := drain(signals)
	require.NotEmpty(t, emitted)

	var lastTS int64
	for _, signal := range emitted {
		assert.GreaterOrEqual(t, signal.Time, lastTS, "signal timestamps are monotonic per symbol")
		lastTS = signal.Time
		assert.Equal(t, "rsi-1", signal.StrategyID)
	}
	assert.Equal(t, int64(30000), lastTS, "last signal shares the last tick's timestamp")
}

func TestStaleTickIgnored(t *testing.T) {
	e, signals := newTestEngine(t, 0)

	e.Process(tick(2000, 100))
	drain(signals)

	e.Process(tick(1000, 99))
	assert.Empty(t, drain(signals), "an out-of-order tick produces no signals")
}

func TestUnknownSymbolIgnored(t *testing.T) {
	e, signals := newTestEngine(t, 0)

	e.Process(&models.Tick{Symbol: "DOGEUSDT", Price: 1, Volume: 1, Time: 1000})
	assert.Empty(t, drain(signals))
}

func TestCooldownSuppressesDuplicates(t *testing.T) {
	e, signals := newTestEngine(t, 10*time.Minute)

	// drive the RSI deep oversold repeatedly
	price := 100.0
	for i := int64(1); i <= 20; i++ {
		price += 0.05
		e.Process(tick(i*1000, price))
	}
	for i := int64(21); i <= 25; i++ {
		price -= 0.5
		e.Process(tick(i*1000, price))
	}

	buys := 0
	suppressed := 0
	for _, signal := range drain(signals) {
		if signal.Action == models.ActionBuy {
			buys++
		}
		if signal.Action == models.ActionHold && signal.Reason == "cooldown: suppressed duplicate BUY" {
			suppressed++
		}
	}

	assert.Equal(t, 1, buys, "only the first BUY inside the cooldown is emitted")
	assert.Greater(t, suppressed, 0)
}

func TestMarketContextDefaults(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	context := e.MarketContext("BTCUSDT")
	assert.Equal(t, "SIDEWAYS", context.Trend)
	assert.Equal(t, "NORMAL", context.Volatility)
	assert.Equal(t, "NORMAL", context.Volume)
}

func TestMarketContextTrend(t *testing.T) {
	e, signals := newTestEngine(t, 0)

	price := 100.0
	for i := int64(1); i <= 40; i++ {
		price *= 1.004
		e.Process(tick(i*1000, price))
	}
	drain(signals)

	context := e.MarketContext("BTCUSDT")
	assert.Equal(t, "UP", context.Trend)
}

func TestLastPrice(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	assert.Equal(t, 0.0, e.LastPrice("BTCUSDT"))

	e.Process(tick(1000, 123.45))
	assert.Equal(t, 123.45, e.LastPrice("BTCUSDT"))
}
