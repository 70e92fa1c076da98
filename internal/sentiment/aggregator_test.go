package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/sources"
	"github.com/stretchr/testify/assert"
)

type stubFetcher struct {
	name    string
	reading *models.SourceReading
	err     error
}

func (f *stubFetcher) Name() string { return f.name }

func (f *stubFetcher) Fetch(ctx context.Context, symbol string) (*models.SourceReading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reading, nil
}

type fixedWeights struct {
	weights models.SourceWeights
}

func (w *fixedWeights) Snapshot() models.SourceWeights { return w.weights }

func reading(source string, score, confidence float64) *models.SourceReading {
	return &models.SourceReading{
		Source:     source,
		Symbol:     "BTCUSDT",
		Score:      score,
		Confidence: confidence,
		ProducedAt: time.Now().UnixMilli(),
	}
}

func TestCombineBounds(t *testing.T) {
	weights := models.DefaultSourceWeights()

	cases := []*struct {
		desc     string
		readings []*models.SourceReading
	}{
		{
			desc: "mixed readings",
			readings: []*models.SourceReading{
				reading(models.SourceMicroblog, 0.9, 0.8),
				reading(models.SourceForum, -0.5, 0.6),
				reading(models.SourceNews, 0.2, 0.4),
			},
		},
		{
			desc: "all failed",
			readings: []*models.SourceReading{
				reading(models.SourceMicroblog, 0, 0),
				reading(models.SourceForum, 0, 0),
			},
		},
		{
			desc: "extremes",
			readings: []*models.SourceReading{
				reading(models.SourceMicroblog, 1, 1),
				reading(models.SourceOnChain, -1, 1),
			},
		},
	}

	for _, test := range cases {
		t.Run(test.desc, func(t *testing.T) {
			result := Combine("BTCUSDT", test.readings, weights)

			assert.True(t, result.OverallScore >= -1 && result.OverallScore <= 1)
			assert.True(t, result.OverallConfidence >= 0 && result.OverallConfidence <= 1)
		})
	}
}

func TestCombineZeroConfidenceContributesNothing(t *testing.T) {
	weights := models.DefaultSourceWeights()

	withFailure := Combine("BTCUSDT", []*models.SourceReading{
		reading(models.SourceMicroblog, 0.8, 0.9),
		reading(models.SourceForum, -1, 0), // failed source
	}, weights)

	alone := Combine("BTCUSDT", []*models.SourceReading{
		reading(models.SourceMicroblog, 0.8, 0.9),
	}, weights)

	assert.InDelta(t, alone.OverallScore, withFailure.OverallScore, 1e-9,
		"a zero-confidence reading must carry zero weight")
}

func TestCombineRoundTrip(t *testing.T) {
	weights := models.DefaultSourceWeights()
	in := reading(models.SourceMicroblog, 0.42, 0.77)

	result := Combine("BTCUSDT", []*models.SourceReading{in}, weights)

	out := result.PerSource[models.SourceMicroblog]
	assert.Equal(t, in.Score, out.Score)
	assert.Equal(t, in.Confidence, out.Confidence)
	assert.InDelta(t, 0.42, result.OverallScore, 1e-9, "single source reproduces its own score")
}

func TestCategorize(t *testing.T) {
	cases := []*struct {
		score    float64
		expected models.SentimentCategory
	}{
		{0.8, models.CategoryExtremeBullish},
		{0.5, models.CategoryBullish},
		{0, models.CategoryNeutral},
		{-0.5, models.CategoryBearish},
		{-0.8, models.CategoryExtremeBearish},
	}

	for _, test := range cases {
		assert.Equal(t, test.expected, categorize(test.score))
	}
}

func TestAggregateSurvivesSourceFailure(t *testing.T) {
	fetchers := []sources.Fetcher{
		&stubFetcher{name: models.SourceMicroblog, reading: reading(models.SourceMicroblog, 0.6, 0.8)},
		&stubFetcher{name: models.SourceForum, err: errors.New("timeout")},
	}

	aggregator := NewAggregator(logger.NewDev(), fetchers, &fixedWeights{weights: models.DefaultSourceWeights()}, nil, time.Second, 8)

	result := aggregator.Aggregate(context.Background(), "BTCUSDT")

	assert.NotNil(t, result.PerSource[models.SourceForum])
	assert.Equal(t, 0.0, result.PerSource[models.SourceForum].Confidence)
	assert.True(t, result.OverallScore >= -1 && result.OverallScore <= 1)
}

func TestOrderBookOverride(t *testing.T) {
	orderBook := reading(models.SourceOrderBook, 0.8, 0.85)
	orderBook.Raw = map[string]interface{}{"entry_signal": "STRONG_BUY"}

	result := Combine("BTCUSDT", []*models.SourceReading{
		reading(models.SourceMicroblog, 0, 0.3),
		orderBook,
	}, models.DefaultSourceWeights())

	// drop overall confidence below the WAIT threshold
	result.OverallConfidence = 0.3
	result.Category = models.CategoryNeutral

	signal := DeriveSignal(result, nil)

	assert.Equal(t, models.SentimentBuy, signal.Action)
	assert.Contains(t, signal.Reason, "order-book override")
}

func TestWaitWithoutOverride(t *testing.T) {
	result := Combine("BTCUSDT", []*models.SourceReading{
		reading(models.SourceMicroblog, 0.1, 0.2),
	}, models.DefaultSourceWeights())

	signal := DeriveSignal(result, nil)
	assert.Equal(t, models.SentimentWait, signal.Action)
}

func TestHackEventForcesStrongSell(t *testing.T) {
	microblog := reading(models.SourceMicroblog, 0.9, 0.9)
	microblog.Raw = map[string]interface{}{"titles": []string{"Major exchange exploit drains wallets"}}

	result := Combine("BTCUSDT", []*models.SourceReading{microblog}, models.DefaultSourceWeights())
	signal := DeriveSignal(result, nil)

	assert.True(t, result.HasCritical(models.EventHack))
	assert.Equal(t, models.SentimentStrongSell, signal.Action)
	assert.InDelta(t, 0.9, signal.Confidence, 1e-9)
}

func TestActionTable(t *testing.T) {
	cases := []*struct {
		desc     string
		category models.SentimentCategory
		context  *models.MarketContext
		expected models.SentimentAction
	}{
		{
			desc:     "extreme bullish normal vol",
			category: models.CategoryExtremeBullish,
			context:  &models.MarketContext{Volatility: "NORMAL", Volume: "NORMAL", Trend: "UP"},
			expected: models.SentimentStrongBuy,
		},
		{
			desc:     "extreme bullish extreme vol",
			category: models.CategoryExtremeBullish,
			context:  &models.MarketContext{Volatility: "EXTREME", Volume: "NORMAL", Trend: "UP"},
			expected: models.SentimentBuy,
		},
		{
			desc:     "bullish high volume",
			category: models.CategoryBullish,
			context:  &models.MarketContext{Volatility: "NORMAL", Volume: "HIGH", Trend: "UP"},
			expected: models.SentimentBuy,
		},
		{
			desc:     "bullish low volume",
			category: models.CategoryBullish,
			context:  &models.MarketContext{Volatility: "NORMAL", Volume: "LOW", Trend: "UP"},
			expected: models.SentimentHold,
		},
		{
			desc:     "bearish with downtrend",
			category: models.CategoryBearish,
			context:  &models.MarketContext{Volatility: "NORMAL", Volume: "NORMAL", Trend: "DOWN"},
			expected: models.SentimentSell,
		},
		{
			desc:     "extreme bearish extreme vol",
			category: models.CategoryExtremeBearish,
			context:  &models.MarketContext{Volatility: "EXTREME", Volume: "NORMAL", Trend: "DOWN"},
			expected: models.SentimentStrongSell,
		},
		{
			desc:     "neutral",
			category: models.CategoryNeutral,
			context:  &models.MarketContext{Volatility: "NORMAL", Volume: "NORMAL", Trend: "SIDEWAYS"},
			expected: models.SentimentHold,
		},
	}

	for _, test := range cases {
		t.Run(test.desc, func(t *testing.T) {
			signal := actionTable(test.category, test.context)
			assert.Equal(t, test.expected, signal.Action)
		})
	}
}

func TestOrderBookAlignmentAdjustment(t *testing.T) {
	aligned := &models.SentimentSignal{Action: models.SentimentBuy, Confidence: 0.6, RiskLevel: models.RiskMedium}
	adjustForOrderBook(aligned, models.CategoryBullish, reading(models.SourceOrderBook, 0.4, 0.9))
	assert.InDelta(t, 0.66, aligned.Confidence, 1e-9)
	assert.Equal(t, models.RiskLow, aligned.RiskLevel)

	conflicted := &models.SentimentSignal{Action: models.SentimentBuy, Confidence: 0.6, RiskLevel: models.RiskMedium}
	adjustForOrderBook(conflicted, models.CategoryBullish, reading(models.SourceOrderBook, -0.4, 0.9))
	assert.InDelta(t, 0.48, conflicted.Confidence, 1e-9)
	assert.Equal(t, models.RiskHigh, conflicted.RiskLevel)
}
