package orderbook

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/metrics"
	"github.com/anvh2/sentiment-trading/internal/models"
	"go.uber.org/zap"
)

// DepthUpdate is one message from the depth transport. Updates may be
// full snapshots or deltas; both are handled.
type DepthUpdate struct {
	Symbol     string
	Bids       []models.PriceLevel
	Asks       []models.PriceLevel
	Time       int64
	IsSnapshot bool
}

type DepthStream interface {
	// Serve blocks delivering updates until stop is closed or the
	// upstream disconnects. It returns on disconnect; the analyzer
	// reconnects with backoff.
	Serve(symbol string, handler func(*DepthUpdate), stop <-chan struct{}) error
}

type Config struct {
	Levels              int
	LargeOrderThreshold float64
	Staleness           time.Duration
}

// Analyzer owns the per-symbol books and derives intelligence from the
// latest snapshot.
type Analyzer struct {
	logger *logger.Logger
	stream DepthStream
	config *Config

	mutex sync.RWMutex
	books map[string]*Book

	wait        sync.WaitGroup
	quitChannel chan struct{}
}

func NewAnalyzer(logger *logger.Logger, stream DepthStream, config *Config) *Analyzer {
	return &Analyzer{
		logger:      logger,
		stream:      stream,
		config:      config,
		books:       make(map[string]*Book),
		quitChannel: make(chan struct{}),
	}
}

func (a *Analyzer) Start(symbols []string) error {
	for _, symbol := range symbols {
		book := NewBook(symbol, a.config.Levels, a.config.LargeOrderThreshold)

		a.mutex.Lock()
		a.books[symbol] = book
		a.mutex.Unlock()

		a.wait.Add(1)

		go func(symbol string, book *Book) {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("[OrderBook] ingest failed", zap.Any("error", r), zap.String("stacktrace", string(debug.Stack())))
				}
			}()

			defer a.wait.Done()
			a.ingest(symbol, book)
		}(symbol, book)
	}

	a.logger.Info("[OrderBook] started", zap.Strings("symbols", symbols))
	return nil
}

func (a *Analyzer) Stop() {
	close(a.quitChannel)
	a.wait.Wait()
}

// ingest serves the stream, reconnecting with exponential backoff.
// During the gap the last snapshot stays readable with the staleness
// flag set.
func (a *Analyzer) ingest(symbol string, book *Book) {
	backoff := time.Second

	for {
		err := a.stream.Serve(symbol, func(update *DepthUpdate) {
			if update.IsSnapshot {
				book.ApplySnapshot(update.Bids, update.Asks, update.Time)
			} else {
				book.ApplyDelta(update.Bids, update.Asks, update.Time)
			}
			metrics.OrderBookStale.WithLabelValues(symbol).Set(0)
		}, a.quitChannel)

		select {
		case <-a.quitChannel:
			return
		default:
		}

		book.MarkStale()
		metrics.OrderBookStale.WithLabelValues(symbol).Set(1)

		a.logger.Error("[OrderBook] stream disconnected",
			zap.String("symbol", symbol), zap.Duration("backoff", backoff), zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-a.quitChannel:
			return
		}

		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

const maxReconnectBackoff = 60 * time.Second

// Snapshot returns the latest point-in-time copy for the symbol.
func (a *Analyzer) Snapshot(symbol string) *models.OrderBookSnapshot {
	a.mutex.RLock()
	book := a.books[symbol]
	a.mutex.RUnlock()

	if book == nil {
		return nil
	}
	return book.Snapshot()
}

// Intelligence derives metrics from the latest snapshot. A stale or
// missing snapshot yields zero confidence.
func (a *Analyzer) Intelligence(symbol string) *models.OrderBookIntelligence {
	snapshot := a.Snapshot(symbol)
	if snapshot == nil {
		return nil
	}

	stale := snapshot.Stale
	if !stale && a.config.Staleness > 0 {
		age := time.Now().UnixMilli() - snapshot.Time
		stale = age > a.config.Staleness.Milliseconds()
	}

	return Derive(snapshot, stale)
}
