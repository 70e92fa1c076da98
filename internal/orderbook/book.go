package orderbook

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/anvh2/sentiment-trading/internal/models"
)

// Book maintains the depth state for one symbol. It is owned by a
// single writer (the ingest goroutine); readers obtain a consistent
// point-in-time copy through an atomic pointer swap, never a
// half-applied update.
type Book struct {
	symbol    string
	levels    int
	largeSize float64

	bids map[float64]float64
	asks map[float64]float64

	snapshot atomic.Pointer[models.OrderBookSnapshot]
}

func NewBook(symbol string, levels int, largeSize float64) *Book {
	b := &Book{
		symbol:    symbol,
		levels:    levels,
		largeSize: largeSize,
		bids:      make(map[float64]float64),
		asks:      make(map[float64]float64),
	}

	b.snapshot.Store(&models.OrderBookSnapshot{Symbol: symbol, Stale: true})
	return b
}

// Snapshot returns the latest published copy.
func (b *Book) Snapshot() *models.OrderBookSnapshot {
	return b.snapshot.Load()
}

// ApplySnapshot replaces the whole depth state.
func (b *Book) ApplySnapshot(bids, asks []models.PriceLevel, ts int64) {
	b.bids = make(map[float64]float64, len(bids))
	b.asks = make(map[float64]float64, len(asks))

	for _, level := range bids {
		if level.Size > 0 {
			b.bids[level.Price] = level.Size
		}
	}
	for _, level := range asks {
		if level.Size > 0 {
			b.asks[level.Price] = level.Size
		}
	}

	b.publish(ts)
}

// ApplyDelta upserts the given levels; a zero size removes the level.
func (b *Book) ApplyDelta(bids, asks []models.PriceLevel, ts int64) {
	for _, level := range bids {
		if level.Size <= 0 {
			delete(b.bids, level.Price)
		} else {
			b.bids[level.Price] = level.Size
		}
	}
	for _, level := range asks {
		if level.Size <= 0 {
			delete(b.asks, level.Price)
		} else {
			b.asks[level.Price] = level.Size
		}
	}

	b.publish(ts)
}

// MarkStale republishes the current state flagged stale; derived
// intelligence reports zero confidence until a fresh update arrives.
func (b *Book) MarkStale() {
	current := b.snapshot.Load()
	if current == nil || current.Stale {
		return
	}

	stale := *current
	stale.Stale = true
	b.snapshot.Store(&stale)
}

func (b *Book) publish(ts int64) {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	bids := sortedLevels(b.bids, true, b.levels)
	asks := sortedLevels(b.asks, false, b.levels)

	snapshot := &models.OrderBookSnapshot{
		Symbol: b.symbol,
		Time:   ts,
		Bids:   bids,
		Asks:   asks,
	}

	if len(bids) > 0 && len(asks) > 0 {
		snapshot.Spread = asks[0].Price - bids[0].Price
	}

	bidSize, askSize := 0.0, 0.0
	for _, level := range bids {
		bidSize += level.Size
		if level.Size > b.largeSize {
			snapshot.LargeBidCount++
		}
	}
	for _, level := range asks {
		askSize += level.Size
		if level.Size > b.largeSize {
			snapshot.LargeAskCount++
		}
	}

	if total := bidSize + askSize; total > 0 {
		snapshot.DepthImbalance = (bidSize - askSize) / total
	}

	switch {
	case snapshot.LargeBidCount >= 3*snapshot.LargeAskCount && snapshot.LargeBidCount > 0:
		snapshot.WallPressure = models.WallPressureBuy
	case snapshot.LargeAskCount >= 3*snapshot.LargeBidCount && snapshot.LargeAskCount > 0:
		snapshot.WallPressure = models.WallPressureSell
	default:
		snapshot.WallPressure = models.WallPressureNone
	}

	b.snapshot.Store(snapshot)
}

func sortedLevels(side map[float64]float64, desc bool, limit int) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(side))
	for price, size := range side {
		out = append(out, models.PriceLevel{Price: price, Size: size})
	}

	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
