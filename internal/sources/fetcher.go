package sources

import (
	"context"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/metrics"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (*models.SourceReading, error)
}

// ZeroReading is what a failed source contributes for a cycle: zero
// score, zero confidence, so the aggregator weighs it out.
func ZeroReading(source, symbol string) *models.SourceReading {
	return &models.SourceReading{
		Source:     source,
		Symbol:     symbol,
		ProducedAt: time.Now().UnixMilli(),
	}
}

// BreakerFetcher wraps a fetcher with an independent circuit breaker:
// open for 60s after 5 consecutive failures, half-open probe afterward.
type BreakerFetcher struct {
	logger  *logger.Logger
	inner   Fetcher
	breaker *gobreaker.CircuitBreaker
}

func WithBreaker(logger *logger.Logger, inner Fetcher) *BreakerFetcher {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[Sources] breaker state changed",
				zap.String("source", name), zap.String("from", from.String()), zap.String("to", to.String()))

			if to == gobreaker.StateOpen {
				metrics.BreakerOpen.WithLabelValues(name).Inc()
			}
		},
	}

	return &BreakerFetcher{
		logger:  logger,
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (f *BreakerFetcher) Name() string { return f.inner.Name() }

func (f *BreakerFetcher) Fetch(ctx context.Context, symbol string) (*models.SourceReading, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.inner.Fetch(ctx, symbol)
	})
	if err != nil {
		metrics.FetcherFailures.WithLabelValues(f.inner.Name()).Inc()
		return nil, err
	}

	return result.(*models.SourceReading), nil
}
