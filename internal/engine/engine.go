package engine

import (
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/bus"
	"github.com/anvh2/sentiment-trading/internal/cache/window"
	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/metrics"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/strategies"
	"github.com/anvh2/sentiment-trading/internal/talib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWindowSize = 50

// Engine is the tick-driven scheduler: it owns the per-symbol price
// windows, fans each tick out to every strategy registered for the
// symbol and publishes the resulting signals on the bounded bus.
type Engine struct {
	logger   *logger.Logger
	registry *strategies.Registry
	signals  *bus.SignalBus
	cooldown time.Duration

	mutex      sync.RWMutex
	windows    map[string]*window.Window
	lastEmit   map[string]int64 // strategy|symbol|action -> last non-HOLD emit
	lastVolume map[string]float64

	wait        sync.WaitGroup
	quitChannel chan struct{}
}

func New(logger *logger.Logger, registry *strategies.Registry, signals *bus.SignalBus, cooldown time.Duration) *Engine {
	return &Engine{
		logger:      logger,
		registry:    registry,
		signals:     signals,
		cooldown:    cooldown,
		windows:     make(map[string]*window.Window),
		lastEmit:    make(map[string]int64),
		lastVolume:  make(map[string]float64),
		quitChannel: make(chan struct{}),
	}
}

// Start consumes the tick stream until it closes or Stop is called.
func (e *Engine) Start(ticks <-chan *models.Tick) error {
	e.wait.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("[Engine] tick loop failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
			}
		}()

		defer e.wait.Done()

		for {
			select {
			case tick, ok := <-ticks:
				if !ok {
					return
				}
				e.Process(tick)

			case <-e.quitChannel:
				return
			}
		}
	}()

	e.logger.Info("[Engine] started")
	return nil
}

func (e *Engine) Stop() {
	close(e.quitChannel)
	e.wait.Wait()
}

// Process appends one tick to the symbol's window and evaluates every
// registered strategy against the updated snapshot. Evaluations run in
// parallel; all signals derived from the tick share its timestamp.
func (e *Engine) Process(tick *models.Tick) {
	w := e.windowFor(tick.Symbol)
	if w == nil {
		return
	}

	if !w.Push(tick) {
		return
	}

	e.mutex.Lock()
	e.lastVolume[tick.Symbol] = tick.Volume
	e.mutex.Unlock()

	snapshot := w.Snapshot()
	instances := e.registry.ForSymbol(tick.Symbol)

	results := make([]*models.TechnicalSignal, len(instances))

	group := new(errgroup.Group)
	for i, instance := range instances {
		i, instance := i, instance

		group.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("[Engine] evaluate panicked",
						zap.String("strategy", instance.ID), zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
					metrics.RecoveredErrors.WithLabelValues("engine").Inc()
				}
			}()

			results[i] = instance.Strategy.Evaluate(snapshot)
			return nil
		})
	}
	group.Wait()

	for _, signal := range results {
		if signal == nil {
			continue
		}

		e.publish(signal)
	}
}

func (e *Engine) publish(signal *models.TechnicalSignal) {
	signal = e.applyCooldown(signal)

	before := e.signals.Dropped()
	e.signals.Publish(signal)

	if dropped := e.signals.Dropped() - before; dropped > 0 {
		metrics.SignalsDropped.Add(float64(dropped))
	}

	metrics.SignalsPublished.WithLabelValues(string(signal.Action)).Inc()
}

// applyCooldown suppresses a repeated non-HOLD action for the same
// (strategy, symbol) inside the cooldown, downgrading it to HOLD with
// the suppression recorded. HOLD signals pass through untouched.
func (e *Engine) applyCooldown(signal *models.TechnicalSignal) *models.TechnicalSignal {
	if e.cooldown <= 0 || signal.Action == models.ActionHold {
		return signal
	}

	key := signal.StrategyID + "|" + signal.Symbol + "|" + string(signal.Action)

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if last, ok := e.lastEmit[key]; ok && signal.Time-last < e.cooldown.Milliseconds() {
		return &models.TechnicalSignal{
			StrategyID: signal.StrategyID,
			Symbol:     signal.Symbol,
			Action:     models.ActionHold,
			Confidence: 0.1,
			Indicators: signal.Indicators,
			Reason:     fmt.Sprintf("cooldown: suppressed duplicate %s", signal.Action),
			Time:       signal.Time,
		}
	}

	e.lastEmit[key] = signal.Time
	return signal
}

func (e *Engine) windowFor(symbol string) *window.Window {
	e.mutex.RLock()
	w := e.windows[symbol]
	e.mutex.RUnlock()

	if w != nil {
		return w
	}

	lookback := e.registry.MaxLookback(symbol)
	if lookback == 0 {
		return nil
	}
	if lookback < minWindowSize {
		lookback = minWindowSize
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.windows[symbol] == nil {
		e.windows[symbol] = window.New(lookback)
	}
	return e.windows[symbol]
}

// LastPrice returns the most recent close for the symbol, 0 when the
// window is empty.
func (e *Engine) LastPrice(symbol string) float64 {
	e.mutex.RLock()
	w := e.windows[symbol]
	e.mutex.RUnlock()

	if w == nil {
		return 0
	}

	last := w.Last()
	if last == nil {
		return 0
	}
	return last.Price
}

// MarketContext derives the coarse trend/volatility/volume state the
// sentiment aggregator crosses with its category table.
func (e *Engine) MarketContext(symbol string) *models.MarketContext {
	context := &models.MarketContext{Trend: "SIDEWAYS", Volatility: "NORMAL", Volume: "NORMAL"}

	e.mutex.RLock()
	w := e.windows[symbol]
	e.mutex.RUnlock()

	if w == nil || w.Len() < 10 {
		return context
	}

	ticks := w.Snapshot()
	closes := window.Closes(ticks)
	volumes := window.Volumes(ticks)

	price := closes[len(closes)-1]
	sma := talib.SMA(closes, len(closes)/2)
	if !math.IsNaN(sma) && sma > 0 {
		drift := (price - sma) / sma
		switch {
		case drift > 0.005:
			context.Trend = "UP"
		case drift < -0.005:
			context.Trend = "DOWN"
		}
	}

	if vol := returnVolatility(closes); vol > 0.03 {
		context.Volatility = "EXTREME"
	} else if vol > 0.015 {
		context.Volatility = "HIGH"
	}

	mean := talib.Mean(volumes)
	if mean > 0 {
		ratio := volumes[len(volumes)-1] / mean
		switch {
		case ratio > 2:
			context.Volume = "EXTREME"
		case ratio > 1.5:
			context.Volume = "HIGH"
		case ratio < 0.5:
			context.Volume = "LOW"
		}
	}

	return context
}

// returnVolatility is the population standard deviation of tick
// returns.
func returnVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
		}
	}

	mean := talib.Mean(returns)
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}

	return math.Sqrt(variance / float64(len(returns)))
}
