package sentiment

import (
	"context"
	"testing"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/stretchr/testify/assert"
)

type stubPositionStore struct {
	positions []*models.Position
}

func (s *stubPositionStore) ClosedPositionsSince(ctx context.Context, since int64) ([]*models.Position, error) {
	return s.positions, nil
}

func winningPosition(symbol string, openedAt int64) *models.Position {
	return &models.Position{
		ID:          "p1",
		Symbol:      symbol,
		Side:        models.SideLong,
		OpenedAt:    openedAt,
		Status:      models.PositionClosed,
		RealizedPnL: 25,
	}
}

func controllerConfig() *WeightsControllerConfig {
	return &WeightsControllerConfig{WinRateHigh: 0.6, WinRateLow: 0.4}
}

func TestWeightsSumToOne(t *testing.T) {
	now := time.Now().UnixMilli()

	store := &stubPositionStore{positions: []*models.Position{winningPosition("BTCUSDT", now)}}
	controller := NewWeightsController(logger.NewDev(), store, controllerConfig())

	cycle := &models.AggregatedSentiment{
		Symbol: "BTCUSDT",
		Time:   now - 1000,
		PerSource: map[string]*models.SourceReading{
			models.SourceMicroblog: reading(models.SourceMicroblog, 0.9, 0.8),
			models.SourceForum:     reading(models.SourceForum, -0.4, 0.5),
			models.SourceNews:      reading(models.SourceNews, 0.1, 0.5),
		},
	}
	controller.RecordCycle(cycle)

	for i := 0; i < 10; i++ {
		assert.NoError(t, controller.Recompute(context.Background()))
		assert.InDelta(t, 1.0, controller.Snapshot().Sum(), 1e-9, "weights must renormalize to 1")
	}
}

func TestHighWinRateRewardsAgreeingSource(t *testing.T) {
	now := time.Now().UnixMilli()

	store := &stubPositionStore{positions: []*models.Position{winningPosition("BTCUSDT", now)}}
	controller := NewWeightsController(logger.NewDev(), store, controllerConfig())

	controller.RecordCycle(&models.AggregatedSentiment{
		Symbol: "BTCUSDT",
		Time:   now - 1000,
		PerSource: map[string]*models.SourceReading{
			models.SourceMicroblog: reading(models.SourceMicroblog, 0.9, 0.8),  // agreed with the up-move
			models.SourceForum:     reading(models.SourceForum, -0.9, 0.5),    // disagreed
		},
	})

	before := controller.Snapshot()
	ratioBefore := before[models.SourceMicroblog] / before[models.SourceForum]

	assert.NoError(t, controller.Recompute(context.Background()))

	after := controller.Snapshot()
	ratioAfter := after[models.SourceMicroblog] / after[models.SourceForum]

	assert.Greater(t, ratioAfter, ratioBefore, "agreeing source gains relative weight")
}

func TestWeightsClamped(t *testing.T) {
	now := time.Now().UnixMilli()

	store := &stubPositionStore{positions: []*models.Position{winningPosition("BTCUSDT", now)}}
	controller := NewWeightsController(logger.NewDev(), store, controllerConfig())

	controller.RecordCycle(&models.AggregatedSentiment{
		Symbol: "BTCUSDT",
		Time:   now - 1000,
		PerSource: map[string]*models.SourceReading{
			models.SourceMicroblog: reading(models.SourceMicroblog, 0.9, 0.8),
			models.SourceForum:     reading(models.SourceForum, -0.9, 0.5),
		},
	})

	for i := 0; i < 200; i++ {
		assert.NoError(t, controller.Recompute(context.Background()))
	}

	for source, weight := range controller.Snapshot() {
		assert.True(t, weight > 0, "weight for %s must stay positive", source)
		assert.True(t, weight <= weightCeil+1e-9, "weight for %s exceeds ceiling", source)
	}
	assert.InDelta(t, 1.0, controller.Snapshot().Sum(), 1e-9)
}

func TestNoPositionsNoChange(t *testing.T) {
	controller := NewWeightsController(logger.NewDev(), &stubPositionStore{}, controllerConfig())

	before := controller.Snapshot()
	assert.NoError(t, controller.Recompute(context.Background()))
	assert.Equal(t, before, controller.Snapshot())
}

func TestSnapshotImmutable(t *testing.T) {
	controller := NewWeightsController(logger.NewDev(), &stubPositionStore{}, controllerConfig())

	snapshot := controller.Snapshot()
	snapshot[models.SourceMicroblog] = 99

	assert.NotEqual(t, 99.0, controller.Snapshot()[models.SourceMicroblog],
		"mutating a reader copy must not leak into the published snapshot")
}
