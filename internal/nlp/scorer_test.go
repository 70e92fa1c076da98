package nlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	scorer := NewScorer()

	cases := []*struct {
		desc     string
		text     string
		positive bool
		zero     bool
	}{
		{desc: "bullish text", text: "BTC looking bullish, expecting a rally to ath", positive: true},
		{desc: "bearish text", text: "this is a scam, expect a dump and crash", positive: false},
		{desc: "no keywords", text: "the weather is nice today", zero: true},
	}

	for _, test := range cases {
		t.Run(test.desc, func(t *testing.T) {
			result := scorer.Score(test.text)

			assert.True(t, result.Score >= -1 && result.Score <= 1)
			assert.True(t, result.Confidence >= 0 && result.Confidence <= 1)

			if test.zero {
				assert.Equal(t, 0.0, result.Score)
				return
			}
			if test.positive {
				assert.Greater(t, result.Score, 0.0)
			} else {
				assert.Less(t, result.Score, 0.0)
			}
		})
	}
}

func TestScoreBatchPreservesOrder(t *testing.T) {
	scorer := NewScorer()

	texts := []string{"bullish rally", "crash dump", "hello world"}
	results, err := scorer.ScoreBatch(context.Background(), texts)
	assert.NoError(t, err)
	assert.Len(t, results, 3)

	assert.Greater(t, results[0].Score, 0.0)
	assert.Less(t, results[1].Score, 0.0)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestScoreWithContext(t *testing.T) {
	scorer := NewScorer()

	base := scorer.Score("bullish rally")
	boosted := scorer.ScoreWithContext("bullish rally", Context{PreviousScore: 0.5, MarketHours: true})
	dampened := scorer.ScoreWithContext("bullish rally", Context{PreviousScore: 0, MarketHours: false})

	assert.Greater(t, boosted.Score, base.Score)
	assert.Less(t, dampened.Score, base.Score)
}

func TestScoreMetrics(t *testing.T) {
	scorer := NewScorer()

	bullish := scorer.ScoreMetrics(OnChainMetrics{
		TxCount:         1000,
		ExchangeInflow:  100,
		ExchangeOutflow: 900,
	})
	assert.Greater(t, bullish.Score, 0.0)

	bearish := scorer.ScoreMetrics(OnChainMetrics{
		TxCount:           1000,
		LargeTransfers:    200,
		ExchangeInflow:    900,
		ExchangeOutflow:   100,
		DormantActivation: 80,
	})
	assert.Less(t, bearish.Score, 0.0)
}
