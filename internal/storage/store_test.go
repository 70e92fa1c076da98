package storage

import (
	"context"
	"testing"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(logger.NewDev(), &Config{
		Path:         ":memory:",
		JournalPath:  t.TempDir(),
		RetryCount:   1,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestPositionRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	position := &models.Position{
		ID:              uuid.NewString(),
		SessionID:       "session-1",
		Symbol:          "BTCUSDT",
		Side:            models.SideLong,
		StrategyID:      "rsi-1",
		OpenedAt:        1000,
		EntryPrice:      100.5,
		Quantity:        0.5,
		Status:          models.PositionOpen,
		EntryConfidence: 0.8,
	}

	require.NoError(t, store.SavePosition(ctx, position))

	loaded, err := store.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, position, loaded)

	position.Status = models.PositionClosed
	position.ExitPrice = 98.1
	position.ClosedAt = 2000
	position.RealizedPnL = -1.2
	require.NoError(t, store.SavePosition(ctx, position))

	loaded, err = store.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, position, loaded)
}

func TestSignalRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	signal := &models.EnhancedSignal{
		ID: uuid.NewString(),
		Technical: &models.TechnicalSignal{
			StrategyID: "rsi-1",
			Symbol:     "BTCUSDT",
			Action:     models.ActionBuy,
			Confidence: 0.75,
			Reason:     "RSI oversold at 25.00",
			Time:       1234,
		},
		SentimentScore:      0.4,
		SentimentConfidence: 0.7,
		FinalAction:         models.ActionBuy,
		FinalConfidence:     0.83,
		ConfidenceBoost:     0.11,
		Rationale:           "boosted",
		WasExecuted:         true,
		ExecuteReason:       "executed",
		Time:                1234,
		ExecutionTime:       1300,
		TradeID:             "trade-1",
	}

	require.NoError(t, store.SaveSignal(ctx, signal))

	loaded, err := store.GetSignal(ctx, signal.ID)
	require.NoError(t, err)

	// the indicator snapshot is not persisted; compare the rest
	signal.Technical.Indicators = nil
	assert.Equal(t, signal, loaded)
}

func TestClosedPositionsSince(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	open := &models.Position{ID: "open", SessionID: "s", Symbol: "BTCUSDT", Side: models.SideLong,
		StrategyID: "a", OpenedAt: 10, EntryPrice: 1, Quantity: 1, Status: models.PositionOpen}
	early := &models.Position{ID: "early", SessionID: "s", Symbol: "BTCUSDT", Side: models.SideLong,
		StrategyID: "a", OpenedAt: 10, EntryPrice: 1, Quantity: 1, Status: models.PositionClosed, ClosedAt: 50}
	late := &models.Position{ID: "late", SessionID: "s", Symbol: "BTCUSDT", Side: models.SideLong,
		StrategyID: "a", OpenedAt: 10, EntryPrice: 1, Quantity: 1, Status: models.PositionClosed, ClosedAt: 500}

	for _, p := range []*models.Position{open, early, late} {
		require.NoError(t, store.SavePosition(ctx, p))
	}

	closed, err := store.ClosedPositionsSince(ctx, 100)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "late", closed[0].ID)
}

func TestTradesForPosition(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	entry := &models.Trade{ID: "t1", PositionID: "p", SessionID: "s", Symbol: "BTCUSDT",
		Side: "BUY", Quantity: 1, Price: 100, Value: 100, Time: 10, IsEntry: true}
	exit := &models.Trade{ID: "t2", PositionID: "p", SessionID: "s", Symbol: "BTCUSDT",
		Side: "SELL", Quantity: 1, Price: 98, Value: 98, Time: 20, IsEntry: false}

	require.NoError(t, store.SaveTrade(ctx, entry))
	require.NoError(t, store.SaveTrade(ctx, exit))

	trades, err := store.TradesForPosition(ctx, "p")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].IsEntry)
	assert.False(t, trades[1].IsEntry)
	assert.LessOrEqual(t, trades[0].Time, trades[1].Time)
}

func TestSessionRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	session := &models.TradingSession{
		ID:              uuid.NewString(),
		StartedAt:       100,
		StartingBalance: 10000,
		CurrentBalance:  10250,
		RealizedPnL:     250,
		TotalTrades:     4,
		WinningTrades:   3,
		Active:          true,
	}

	require.NoError(t, store.SaveSession(ctx, session))
	// sessions are updated in place on every close
	session.TotalTrades = 5
	require.NoError(t, store.SaveSession(ctx, session))
}
