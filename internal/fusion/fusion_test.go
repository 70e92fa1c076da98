package fusion

import (
	"testing"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/stretchr/testify/assert"
)

func newFuser() *Fuser {
	return New(logger.NewDev(), &Config{
		MinSentimentConfidence: 0.4,
		ConflictThreshold:      0.3,
		MaxBoost:               0.2,
		Staleness:              30 * time.Second,
	})
}

func buySignal(confidence float64) *models.TechnicalSignal {
	return &models.TechnicalSignal{
		StrategyID: "rsi-1",
		Symbol:     "BTCUSDT",
		Action:     models.ActionBuy,
		Confidence: confidence,
		Reason:     "RSI oversold at 25.00",
		Time:       time.Now().UnixMilli(),
	}
}

func sentiment(score, confidence float64) *models.AggregatedSentiment {
	return &models.AggregatedSentiment{
		Symbol:            "BTCUSDT",
		Time:              time.Now().UnixMilli(),
		OverallScore:      score,
		OverallConfidence: confidence,
	}
}

func TestAlignedSentimentBoosts(t *testing.T) {
	fuser := newFuser()

	enhanced := fuser.Fuse(buySignal(0.75), sentiment(0.4, 0.7))

	assert.Equal(t, models.ActionBuy, enhanced.FinalAction)
	assert.False(t, enhanced.Conflict)
	assert.True(t, enhanced.FinalConfidence >= 0.80 && enhanced.FinalConfidence <= 0.95,
		"expected boosted confidence in [0.80, 0.95], got %v", enhanced.FinalConfidence)
}

func TestConflictSkips(t *testing.T) {
	fuser := newFuser()

	enhanced := fuser.Fuse(buySignal(0.75), sentiment(-0.6, 0.7))

	assert.True(t, enhanced.Conflict)
	assert.Equal(t, models.ActionSkip, enhanced.FinalAction)
	assert.Equal(t, 0.0, enhanced.FinalConfidence)
}

func TestConflictInvariant(t *testing.T) {
	fuser := newFuser()

	// every fused signal flagged as conflict with confident sentiment
	// must land on SKIP
	scores := []float64{-0.3, -0.5, -0.9, 0.3, 0.5, 0.9}
	actions := []models.Action{models.ActionBuy, models.ActionSell}

	for _, action := range actions {
		for _, score := range scores {
			technical := buySignal(0.7)
			technical.Action = action

			enhanced := fuser.Fuse(technical, sentiment(score, 0.7))
			if enhanced.Conflict {
				assert.Equal(t, models.ActionSkip, enhanced.FinalAction)
			}
		}
	}
}

func TestWeakSentimentIgnored(t *testing.T) {
	fuser := newFuser()

	enhanced := fuser.Fuse(buySignal(0.75), sentiment(-0.9, 0.3))

	assert.Equal(t, models.ActionBuy, enhanced.FinalAction)
	assert.InDelta(t, 0.75, enhanced.FinalConfidence, 1e-9)
	assert.Contains(t, enhanced.Rationale, "sentiment ignored")
}

func TestStaleSentimentIgnored(t *testing.T) {
	fuser := newFuser()

	old := sentiment(0.8, 0.9)
	old.Time = time.Now().Add(-time.Minute).UnixMilli()

	enhanced := fuser.Fuse(buySignal(0.75), old)

	assert.Equal(t, models.ActionBuy, enhanced.FinalAction)
	assert.Contains(t, enhanced.Rationale, "stale")
}

func TestNilSentiment(t *testing.T) {
	fuser := newFuser()

	enhanced := fuser.Fuse(buySignal(0.75), nil)
	assert.Equal(t, models.ActionBuy, enhanced.FinalAction)
	assert.InDelta(t, 0.75, enhanced.FinalConfidence, 1e-9)
}

func TestHackEventPreempts(t *testing.T) {
	fuser := newFuser()

	s := sentiment(0.8, 0.9) // bullish, aligned with the BUY
	s.CriticalEvents = []*models.CriticalEvent{{
		Kind:        models.EventHack,
		Severity:    models.SeverityCritical,
		Impact:      -9,
		Source:      models.SourceNews,
		Description: "Bridge exploit drains funds",
	}}

	enhanced := fuser.Fuse(buySignal(0.75), s)

	assert.Equal(t, models.ActionSkip, enhanced.FinalAction)
	assert.Contains(t, enhanced.Rationale, "HACK")
	assert.Contains(t, enhanced.Rationale, "Bridge exploit")
}

func TestBoostCapped(t *testing.T) {
	fuser := newFuser()

	enhanced := fuser.Fuse(buySignal(0.94), sentiment(0.9, 0.9))
	assert.LessOrEqual(t, enhanced.FinalConfidence, 0.95)
}
