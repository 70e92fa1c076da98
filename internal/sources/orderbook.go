package sources

import (
	"context"
	"errors"
	"time"

	"github.com/anvh2/sentiment-trading/internal/models"
)

var ErrNoIntelligence = errors.New("sources: no order book intelligence")

// IntelligenceProvider is implemented by the order-book analyzer.
type IntelligenceProvider interface {
	Intelligence(symbol string) *models.OrderBookIntelligence
}

// OrderBook reads the latest depth intelligence and converts it to the
// common score/confidence space.
type OrderBook struct {
	provider IntelligenceProvider
}

func NewOrderBook(provider IntelligenceProvider) *OrderBook {
	return &OrderBook{provider: provider}
}

func (o *OrderBook) Name() string { return models.SourceOrderBook }

func (o *OrderBook) Fetch(ctx context.Context, symbol string) (*models.SourceReading, error) {
	intel := o.provider.Intelligence(symbol)
	if intel == nil {
		return nil, ErrNoIntelligence
	}

	return &models.SourceReading{
		Source:     o.Name(),
		Symbol:     symbol,
		Score:      intel.Score(),
		Confidence: intel.ConfidenceScore / 100,
		Volume:     intel.WhaleActivity,
		ProducedAt: time.Now().UnixMilli(),
		Raw: map[string]interface{}{
			"entry_signal":     string(intel.EntrySignal),
			"confidence_score": intel.ConfidenceScore,
			"timeframe":        string(intel.Timeframe),
		},
	}, nil
}
