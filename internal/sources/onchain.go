package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/nlp"
)

// OnChain queries scalar chain metrics and scores them.
type OnChain struct {
	client   *http.Client
	scorer   *nlp.Scorer
	endpoint string
	keywords func(symbol string) []string
}

func NewOnChain(scorer *nlp.Scorer, endpoint string, keywords func(string) []string) *OnChain {
	return &OnChain{
		client:   &http.Client{},
		scorer:   scorer,
		endpoint: endpoint,
		keywords: keywords,
	}
}

func (o *OnChain) Name() string { return models.SourceOnChain }

func (o *OnChain) Fetch(ctx context.Context, symbol string) (*models.SourceReading, error) {
	body, err := httpGet(ctx, o.client, fmt.Sprintf("%s?asset=%s", o.endpoint, url.QueryEscape(baseAsset(symbol, o.keywords))))
	if err != nil {
		return nil, err
	}

	m := nlp.OnChainMetrics{
		TxCount:           body.Get("tx_count").MustFloat64(),
		LargeTransfers:    body.Get("large_transfers").MustFloat64(),
		ExchangeInflow:    body.Get("exchange_inflow").MustFloat64(),
		ExchangeOutflow:   body.Get("exchange_outflow").MustFloat64(),
		MempoolSize:       body.Get("mempool_size").MustFloat64(),
		DormantActivation: body.Get("dormant_activations").MustFloat64(),
	}

	result := o.scorer.ScoreMetrics(m)

	return &models.SourceReading{
		Source:     o.Name(),
		Symbol:     symbol,
		Score:      result.Score,
		Confidence: result.Confidence,
		Volume:     m.TxCount,
		ProducedAt: time.Now().UnixMilli(),
		Raw: map[string]interface{}{
			"large_transfers": m.LargeTransfers,
			"tx_count":        m.TxCount,
		},
	}, nil
}
