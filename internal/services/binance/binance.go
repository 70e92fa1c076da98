package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"golang.org/x/time/rate"
)

const (
	_APIURL = "https://api.binance.com"
)

// Binance is the upstream exchange adapter for last-price quotes.
type Binance struct {
	limiter *rate.Limiter
	logger  *logger.Logger
	client  *http.Client
	baseURL string
}

func New(logger *logger.Logger) *Binance {
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 10)

	return &Binance{
		limiter: limiter,
		logger:  logger,
		baseURL: _APIURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithBaseURL overrides the endpoint, used by tests.
func (b *Binance) WithBaseURL(url string) *Binance {
	b.baseURL = url
	return b
}

// GetQuote fetches the 24h ticker and normalizes it to a quote.
func (b *Binance) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", b.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: %v", resp.Status)
	}

	rawData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	body, err := simplejson.NewJson(rawData)
	if err != nil {
		return nil, err
	}

	price, err := body.Get("lastPrice").String()
	if err != nil {
		return nil, fmt.Errorf("binance: missing lastPrice")
	}

	volume, _ := body.Get("volume").String()
	closeTime, _ := body.Get("closeTime").Int64()
	if closeTime == 0 {
		closeTime = time.Now().UnixMilli()
	}

	return &models.Quote{
		Symbol: symbol,
		Price:  parseFloat(price),
		Volume: parseFloat(volume),
		Time:   closeTime,
	}, nil
}

func parseFloat(val string) float64 {
	var out float64
	fmt.Sscanf(val, "%f", &out)
	return out
}
