package sentiment

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/talib"
	"go.uber.org/zap"
)

const (
	weightFloor     = 0.05
	weightCeil      = 0.5
	attributionSpan = 24 * time.Hour
	entryMatchSpan  = 10 * time.Minute
)

// PositionStore exposes the realized outcomes the controller learns
// from.
type PositionStore interface {
	ClosedPositionsSince(ctx context.Context, since int64) ([]*models.Position, error)
}

// WeightsController periodically recomputes the per-source weights from
// recent realized performance. Updates publish a fresh immutable
// snapshot; the aggregator reads exactly one snapshot per cycle.
type WeightsController struct {
	logger *logger.Logger
	store  PositionStore
	config *WeightsControllerConfig

	current atomic.Pointer[models.SourceWeights]

	mutex   sync.Mutex
	history map[string][]*models.AggregatedSentiment // symbol -> recent cycles

	wait        sync.WaitGroup
	quitChannel chan struct{}
}

type WeightsControllerConfig struct {
	WinRateHigh float64
	WinRateLow  float64
}

func NewWeightsController(logger *logger.Logger, store PositionStore, config *WeightsControllerConfig) *WeightsController {
	c := &WeightsController{
		logger:      logger,
		store:       store,
		config:      config,
		history:     make(map[string][]*models.AggregatedSentiment),
		quitChannel: make(chan struct{}),
	}

	initial := models.DefaultSourceWeights().Normalized()
	c.current.Store(&initial)
	return c
}

// Snapshot returns a copy of the current weights; mutating it never
// affects the published state.
func (c *WeightsController) Snapshot() models.SourceWeights {
	return (*c.current.Load()).Clone()
}

// RecordCycle retains the cycle so entry-time readings can be
// attributed later. Old cycles are pruned past the attribution span.
func (c *WeightsController) RecordCycle(result *models.AggregatedSentiment) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cycles := append(c.history[result.Symbol], result)

	cutoff := time.Now().Add(-attributionSpan).UnixMilli()
	for len(cycles) > 0 && cycles[0].Time < cutoff {
		cycles = cycles[1:]
	}

	c.history[result.Symbol] = cycles
}

func (c *WeightsController) Start(interval time.Duration) error {
	c.wait.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("[Weights] update loop failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
			}
		}()

		defer c.wait.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Recompute(context.Background()); err != nil {
					c.logger.Error("[Weights] recompute failed", zap.Error(err))
				}

			case <-c.quitChannel:
				return
			}
		}
	}()

	return nil
}

func (c *WeightsController) Stop() {
	close(c.quitChannel)
	c.wait.Wait()
}

// Recompute reads recent closed positions, attributes per-source
// agreement with the realized direction and nudges the weights.
func (c *WeightsController) Recompute(ctx context.Context) error {
	since := time.Now().Add(-attributionSpan).UnixMilli()

	positions, err := c.store.ClosedPositionsSince(ctx, since)
	if err != nil {
		return err
	}

	if len(positions) == 0 {
		return nil
	}

	wins := 0
	agreement := make(map[string]float64)

	for _, position := range positions {
		if position.RealizedPnL > 0 {
			wins++
		}

		cycle := c.cycleAt(position.Symbol, position.OpenedAt)
		if cycle == nil {
			continue
		}

		direction := priceDirection(position)
		for source, reading := range cycle.PerSource {
			agreement[source] += reading.Score * direction
		}
	}

	winRate := float64(wins) / float64(len(positions))

	next := c.Snapshot()
	c.adjust(next, agreement, winRate)

	for source, weight := range next {
		next[source] = talib.Clamp(weight, weightFloor, weightCeil)
	}
	normalized := next.Normalized()

	c.current.Store(&normalized)

	c.logger.Info("[Weights] updated",
		zap.Float64("win_rate", winRate), zap.Int("positions", len(positions)), zap.Any("weights", normalized))
	return nil
}

func (c *WeightsController) adjust(weights models.SourceWeights, agreement map[string]float64, winRate float64) {
	if len(agreement) == 0 {
		return
	}

	sources := make([]string, 0, len(agreement))
	for source := range agreement {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return agreement[sources[i]] > agreement[sources[j]] })

	top, bottom := sources[0], sources[len(sources)-1]

	switch {
	case winRate > c.config.WinRateHigh:
		weights[top] += 0.01
		weights[bottom] -= 0.005

	case winRate < c.config.WinRateLow:
		weights[top] -= 0.01
		weights[bottom] += 0.005
	}
}

// cycleAt finds the latest recorded cycle at or before the entry time,
// within the match span.
func (c *WeightsController) cycleAt(symbol string, entryTime int64) *models.AggregatedSentiment {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var found *models.AggregatedSentiment
	for _, cycle := range c.history[symbol] {
		if cycle.Time > entryTime {
			break
		}
		found = cycle
	}

	if found == nil || entryTime-found.Time > entryMatchSpan.Milliseconds() {
		return nil
	}
	return found
}

// priceDirection is +1 when the price moved up over the position's
// life, -1 when it moved down.
func priceDirection(position *models.Position) float64 {
	up := position.RealizedPnL > 0
	if position.Side == models.SideShort {
		up = !up
	}

	if up {
		return 1
	}
	return -1
}
