package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/nlp"
	"github.com/anvh2/sentiment-trading/internal/talib"
)

// Microblog scores the keyword-filtered cashtag stream for a symbol.
type Microblog struct {
	client   *http.Client
	scorer   *nlp.Scorer
	endpoint string
	maxItems int
	keywords func(symbol string) []string
}

func NewMicroblog(scorer *nlp.Scorer, endpoint string, maxItems int, keywords func(string) []string) *Microblog {
	return &Microblog{
		client:   &http.Client{},
		scorer:   scorer,
		endpoint: endpoint,
		maxItems: maxItems,
		keywords: keywords,
	}
}

func (m *Microblog) Name() string { return models.SourceMicroblog }

func (m *Microblog) Fetch(ctx context.Context, symbol string) (*models.SourceReading, error) {
	cashtag := "$" + baseAsset(symbol, m.keywords)

	body, err := httpGet(ctx, m.client, fmt.Sprintf("%s?q=%s&limit=%d", m.endpoint, url.QueryEscape(cashtag), m.maxItems))
	if err != nil {
		return nil, err
	}

	items := body.Get("items")
	texts := make([]string, 0, m.maxItems)

	for i := 0; i < len(items.MustArray()) && i < m.maxItems; i++ {
		text := items.GetIndex(i).Get("text").MustString()
		if text != "" {
			texts = append(texts, text)
		}
	}

	scores, err := m.scorer.ScoreBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	score, confidence := combineScores(scores)

	return &models.SourceReading{
		Source:     m.Name(),
		Symbol:     symbol,
		Score:      score,
		Confidence: confidence,
		Volume:     float64(len(texts)),
		ProducedAt: time.Now().UnixMilli(),
		Raw:        map[string]interface{}{"titles": texts},
	}, nil
}

// combineScores averages per-text scores weighted by confidence. A thin
// sample caps the confidence.
func combineScores(scores []nlp.TextScore) (float64, float64) {
	if len(scores) == 0 {
		return 0, 0
	}

	scoreSum, confSum := 0.0, 0.0
	for _, s := range scores {
		scoreSum += s.Score * s.Confidence
		confSum += s.Confidence
	}

	score := 0.0
	if confSum > 0 {
		score = scoreSum / confSum
	}

	coverage := talib.Clamp(float64(len(scores))/20, 0, 1)
	return talib.Clamp(score, -1, 1), talib.Clamp(confSum/float64(len(scores))*coverage, 0, 1)
}

// baseAsset strips the quote asset using the first configured keyword
// when available.
func baseAsset(symbol string, keywords func(string) []string) string {
	if keywords != nil {
		if kw := keywords(symbol); len(kw) > 0 {
			return kw[0]
		}
	}
	return symbol
}
