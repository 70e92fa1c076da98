package window

import (
	"testing"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/stretchr/testify/assert"
)

func tick(ts int64, price float64) *models.Tick {
	return &models.Tick{Symbol: "BTCUSDT", Price: price, Volume: 1, Time: ts}
}

func TestWindowBound(t *testing.T) {
	w := New(3)

	for i := int64(1); i <= 10; i++ {
		w.Push(tick(i, float64(i)))
		assert.LessOrEqual(t, w.Len(), 3)
	}

	snapshot := w.Snapshot()
	assert.Len(t, snapshot, 3)
	assert.Equal(t, int64(8), snapshot[0].Time)
	assert.Equal(t, int64(10), snapshot[2].Time)
}

func TestWindowOrdering(t *testing.T) {
	w := New(5)

	assert.True(t, w.Push(tick(10, 1)))
	assert.True(t, w.Push(tick(20, 2)))
	assert.False(t, w.Push(tick(15, 3)), "out of order tick must be rejected")

	snapshot := w.Snapshot()
	assert.Len(t, snapshot, 2)

	for i := 1; i < len(snapshot); i++ {
		assert.Less(t, snapshot[i-1].Time, snapshot[i].Time)
	}
}

func TestWindowReplayIdempotent(t *testing.T) {
	w := New(5)

	w.Push(tick(10, 1))
	w.Push(tick(20, 2))

	before := w.Snapshot()
	w.Push(tick(20, 2))
	after := w.Snapshot()

	assert.Equal(t, Closes(before), Closes(after))
	assert.Equal(t, len(before), len(after))
}

func TestSnapshotIsCopy(t *testing.T) {
	w := New(5)
	w.Push(tick(10, 1))

	snapshot := w.Snapshot()
	w.Push(tick(20, 2))

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, w.Len())
}
