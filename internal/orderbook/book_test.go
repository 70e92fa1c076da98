package orderbook

import (
	"testing"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/stretchr/testify/assert"
)

func level(price, size float64) models.PriceLevel {
	return models.PriceLevel{Price: price, Size: size}
}

func TestSnapshotMetrics(t *testing.T) {
	book := NewBook("BTCUSDT", 20, 10)

	book.ApplySnapshot(
		[]models.PriceLevel{level(100, 30), level(99, 12), level(98, 2)},
		[]models.PriceLevel{level(101, 5), level(102, 5)},
		1000,
	)

	snapshot := book.Snapshot()
	assert.Equal(t, 100.0, snapshot.Bids[0].Price, "bids ordered descending")
	assert.Equal(t, 101.0, snapshot.Asks[0].Price, "asks ordered ascending")
	assert.InDelta(t, 1.0, snapshot.Spread, 1e-9)

	// (44 - 10) / (44 + 10)
	assert.InDelta(t, 34.0/54.0, snapshot.DepthImbalance, 1e-9)
	assert.Equal(t, 2, snapshot.LargeBidCount)
	assert.Equal(t, 0, snapshot.LargeAskCount)
	assert.Equal(t, models.WallPressureBuy, snapshot.WallPressure)
	assert.False(t, snapshot.Stale)
}

func TestDeltaRemovesLevels(t *testing.T) {
	book := NewBook("BTCUSDT", 20, 10)

	book.ApplySnapshot(
		[]models.PriceLevel{level(100, 5), level(99, 5)},
		[]models.PriceLevel{level(101, 5)},
		1000,
	)

	book.ApplyDelta([]models.PriceLevel{level(100, 0)}, nil, 2000)

	snapshot := book.Snapshot()
	assert.Len(t, snapshot.Bids, 1)
	assert.Equal(t, 99.0, snapshot.Bids[0].Price)
}

func TestReadersSeeConsistentCopy(t *testing.T) {
	book := NewBook("BTCUSDT", 20, 10)

	book.ApplySnapshot([]models.PriceLevel{level(100, 5)}, []models.PriceLevel{level(101, 5)}, 1000)
	before := book.Snapshot()

	book.ApplySnapshot([]models.PriceLevel{level(200, 5)}, []models.PriceLevel{level(201, 5)}, 2000)

	assert.Equal(t, 100.0, before.Bids[0].Price, "old snapshot is immutable")
	assert.Equal(t, 200.0, book.Snapshot().Bids[0].Price)
}

func TestStaleIntelligenceZeroConfidence(t *testing.T) {
	book := NewBook("BTCUSDT", 20, 10)
	book.ApplySnapshot(
		[]models.PriceLevel{level(100, 50), level(99, 40)},
		[]models.PriceLevel{level(101, 5)},
		1000,
	)

	fresh := Derive(book.Snapshot(), false)
	assert.Greater(t, fresh.ConfidenceScore, 0.0)

	book.MarkStale()
	stale := Derive(book.Snapshot(), true)
	assert.Equal(t, 0.0, stale.ConfidenceScore)
	assert.Equal(t, fresh.EntrySignal, stale.EntrySignal, "structural signal survives staleness")
}

func TestEntrySignalBuckets(t *testing.T) {
	cases := []*struct {
		desc     string
		bids     []models.PriceLevel
		asks     []models.PriceLevel
		expected models.EntrySignal
	}{
		{
			desc:     "heavy bid side",
			bids:     []models.PriceLevel{level(100, 90), level(99, 80), level(98, 70)},
			asks:     []models.PriceLevel{level(101, 5)},
			expected: models.EntryStrongBuy,
		},
		{
			desc:     "heavy ask side",
			bids:     []models.PriceLevel{level(100, 5)},
			asks:     []models.PriceLevel{level(101, 90), level(102, 80), level(103, 70)},
			expected: models.EntryStrongSell,
		},
		{
			desc:     "balanced",
			bids:     []models.PriceLevel{level(100, 5)},
			asks:     []models.PriceLevel{level(101, 5)},
			expected: models.EntryNeutral,
		},
	}

	for _, test := range cases {
		t.Run(test.desc, func(t *testing.T) {
			book := NewBook("BTCUSDT", 20, 10)
			book.ApplySnapshot(test.bids, test.asks, 1000)

			intel := Derive(book.Snapshot(), false)
			assert.Equal(t, test.expected, intel.EntrySignal)
		})
	}
}
