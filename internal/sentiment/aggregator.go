package sentiment

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/sources"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WeightsProvider hands out the current immutable weights snapshot.
type WeightsProvider interface {
	Snapshot() models.SourceWeights
}

// ContextProvider supplies the coarse market state for a symbol; the
// execution engine derives it from its price windows.
type ContextProvider interface {
	MarketContext(symbol string) *models.MarketContext
}

// Aggregator fans every source fetcher out in parallel per cycle,
// normalizes the readings and combines them under the current weights.
type Aggregator struct {
	logger      *logger.Logger
	fetchers    []sources.Fetcher
	weights     WeightsProvider
	context     ContextProvider
	timeout     time.Duration
	parallelism int

	latest sync.Map // symbol -> *models.AggregatedSentiment

	observers []func(*models.AggregatedSentiment)

	wait        sync.WaitGroup
	quitChannel chan struct{}
}

func NewAggregator(
	logger *logger.Logger,
	fetchers []sources.Fetcher,
	weights WeightsProvider,
	context ContextProvider,
	timeout time.Duration,
	parallelism int,
) *Aggregator {
	if parallelism <= 0 {
		parallelism = 8
	}

	return &Aggregator{
		logger:      logger,
		fetchers:    fetchers,
		weights:     weights,
		context:     context,
		timeout:     timeout,
		parallelism: parallelism,
		quitChannel: make(chan struct{}),
	}
}

// Observe registers a callback invoked after every completed cycle.
// Must be called before Start.
func (a *Aggregator) Observe(fn func(*models.AggregatedSentiment)) {
	a.observers = append(a.observers, fn)
}

func (a *Aggregator) Start(symbols []string, interval time.Duration) error {
	a.wait.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("[Sentiment] cycle loop failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
			}
		}()

		defer a.wait.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.runCycle(symbols)

		for {
			select {
			case <-ticker.C:
				a.runCycle(symbols)

			case <-a.quitChannel:
				return
			}
		}
	}()

	a.logger.Info("[Sentiment] started", zap.Strings("symbols", symbols), zap.Duration("interval", interval))
	return nil
}

func (a *Aggregator) Stop() {
	close(a.quitChannel)
	a.wait.Wait()
}

// Latest returns the most recent aggregation for the symbol, nil when
// no cycle has completed yet.
func (a *Aggregator) Latest(symbol string) *models.AggregatedSentiment {
	if value, ok := a.latest.Load(symbol); ok {
		return value.(*models.AggregatedSentiment)
	}
	return nil
}

func (a *Aggregator) runCycle(symbols []string) {
	for _, symbol := range symbols {
		result := a.Aggregate(context.Background(), symbol)
		a.latest.Store(symbol, result)

		for _, observer := range a.observers {
			observer(result)
		}
	}
}

// Aggregate runs one fan-out/fan-in cycle for a symbol. A failing
// source never aborts the cycle; it contributes a zero reading.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string) *models.AggregatedSentiment {
	readings := make([]*models.SourceReading, len(a.fetchers))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.parallelism)

	for i, fetcher := range a.fetchers {
		i, fetcher := i, fetcher

		group.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(groupCtx, a.timeout)
			defer cancel()

			reading, err := fetcher.Fetch(fetchCtx, symbol)
			if err != nil {
				a.logger.Warn("[Sentiment] source failed",
					zap.String("source", fetcher.Name()), zap.String("symbol", symbol), zap.Error(err))
				reading = sources.ZeroReading(fetcher.Name(), symbol)
			}

			readings[i] = reading
			return nil
		})
	}

	group.Wait()

	weights := models.DefaultSourceWeights()
	if a.weights != nil {
		weights = a.weights.Snapshot()
	}

	result := Combine(symbol, readings, weights)

	var marketContext *models.MarketContext
	if a.context != nil {
		marketContext = a.context.MarketContext(symbol)
	}
	result.TradingSignal = DeriveSignal(result, marketContext)

	a.logger.Info("[Sentiment] cycle complete",
		zap.String("symbol", symbol),
		zap.Float64("score", result.OverallScore),
		zap.Float64("confidence", result.OverallConfidence),
		zap.String("category", string(result.Category)),
		zap.String("action", string(result.TradingSignal.Action)))

	return result
}

// Combine computes the weighted aggregate over one cycle's readings.
// Sources reporting zero confidence contribute zero weight.
func Combine(symbol string, readings []*models.SourceReading, weights models.SourceWeights) *models.AggregatedSentiment {
	result := &models.AggregatedSentiment{
		Symbol:    symbol,
		Time:      time.Now().UnixMilli(),
		PerSource: make(map[string]*models.SourceReading, len(readings)),
	}

	scoreSum, confSum, weightSum := 0.0, 0.0, 0.0

	for _, reading := range readings {
		if reading == nil {
			continue
		}

		result.PerSource[reading.Source] = reading

		weight := weights[reading.Source]
		if reading.Confidence == 0 {
			weight = 0
		}

		scoreSum += reading.Score * weight
		confSum += reading.Confidence * weight
		weightSum += weight
	}

	if weightSum > 0 {
		result.OverallScore = scoreSum / weightSum
		result.OverallConfidence = confSum / weightSum
	}

	result.Category = categorize(result.OverallScore)
	result.CriticalEvents = ExtractEvents(readings)

	return result
}

func categorize(score float64) models.SentimentCategory {
	switch {
	case score >= 0.7:
		return models.CategoryExtremeBullish
	case score >= 0.3:
		return models.CategoryBullish
	case score <= -0.7:
		return models.CategoryExtremeBearish
	case score <= -0.3:
		return models.CategoryBearish
	default:
		return models.CategoryNeutral
	}
}
