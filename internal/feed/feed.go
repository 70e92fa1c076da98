package feed

import (
	"context"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/metrics"
	"github.com/anvh2/sentiment-trading/internal/models"
	"go.uber.org/zap"
)

const maxBackoff = 60 * time.Second

type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Feed pulls one quote per symbol at a fixed cadence and broadcasts the
// resulting ticks. Every subscriber sees every tick exactly once in
// arrival order. Prices are never synthesized: a failed pull emits
// nothing.
type Feed struct {
	logger   *logger.Logger
	provider QuoteProvider
	symbols  []string
	interval time.Duration

	mutex       sync.RWMutex
	subscribers []chan *models.Tick
	failures    map[string]int

	wait        sync.WaitGroup
	quitChannel chan struct{}
	stopOnce    sync.Once
}

func New(logger *logger.Logger, provider QuoteProvider, symbols []string, interval time.Duration) *Feed {
	return &Feed{
		logger:      logger,
		provider:    provider,
		symbols:     symbols,
		interval:    interval,
		failures:    make(map[string]int),
		quitChannel: make(chan struct{}),
	}
}

// Subscribe registers a consumer. All subscriptions must happen before
// Start so no subscriber misses ticks.
func (f *Feed) Subscribe(buffer int) <-chan *models.Tick {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	ch := make(chan *models.Tick, buffer)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

func (f *Feed) Start() error {
	for _, symbol := range f.symbols {
		f.wait.Add(1)

		go func(symbol string) {
			defer func() {
				if r := recover(); r != nil {
					f.logger.Error("[Feed] pull loop failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
				}
			}()

			defer f.wait.Done()
			f.pullLoop(symbol)
		}(symbol)
	}

	f.logger.Info("[Feed] started", zap.Strings("symbols", f.symbols), zap.Duration("interval", f.interval))
	return nil
}

// Stop halts the pull loops and closes all subscriber channels.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		close(f.quitChannel)
		f.wait.Wait()

		f.mutex.Lock()
		for _, ch := range f.subscribers {
			close(ch)
		}
		f.subscribers = nil
		f.mutex.Unlock()
	})
}

// Failures reports the consecutive failure count for the symbol.
func (f *Feed) Failures(symbol string) int {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.failures[symbol]
}

func (f *Feed) pullLoop(symbol string) {
	timer := time.NewTimer(0) // first pull immediately
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			delay := f.interval
			if err := f.pull(symbol); err != nil {
				delay = f.backoff(symbol)
				f.logger.Error("[Feed] pull failed",
					zap.String("symbol", symbol), zap.Duration("backoff", delay), zap.Error(err))
			}
			timer.Reset(delay)

		case <-f.quitChannel:
			return
		}
	}
}

func (f *Feed) pull(symbol string) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.interval)
	defer cancel()

	quote, err := f.provider.GetQuote(ctx, symbol)
	if err != nil {
		f.mutex.Lock()
		f.failures[symbol]++
		f.mutex.Unlock()

		metrics.FeedFailures.Inc()
		return err
	}

	f.mutex.Lock()
	f.failures[symbol] = 0
	f.mutex.Unlock()

	f.broadcast(&models.Tick{
		Symbol: quote.Symbol,
		Price:  quote.Price,
		Volume: quote.Volume,
		Time:   quote.Time,
	})

	return nil
}

func (f *Feed) broadcast(tick *models.Tick) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- tick:
		case <-f.quitChannel:
			return
		}
	}
}

// backoff grows exponentially with jitter, bounded at 60s.
func (f *Feed) backoff(symbol string) time.Duration {
	f.mutex.RLock()
	count := f.failures[symbol]
	f.mutex.RUnlock()

	delay := f.interval
	for i := 1; i < count; i++ {
		delay *= 2
		if delay >= maxBackoff {
			delay = maxBackoff
			break
		}
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > maxBackoff {
		delay = maxBackoff
	}

	return delay
}
