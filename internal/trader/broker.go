package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"

	TIFGoodTillCancel = "gtc"
	TIFDay            = "day"
)

var (
	ErrInvalidTIF   = errors.New("broker: invalid time in force")
	ErrNoMarketData = errors.New("broker: no market data for symbol")
)

type OrderRequest struct {
	Symbol string
	Side   string // BUY or SELL
	Qty    float64
	Type   string
	TIF    string
	Price  float64 // limit orders only
}

type OrderAck struct {
	OrderID string
	Symbol  string
	Side    string
	Qty     float64
	Price   float64
	Time    int64
}

type Account struct {
	Balance float64
	Equity  float64
}

type Broker interface {
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error)
	Cancel(ctx context.Context, orderID string) error
	GetPositions(ctx context.Context) ([]*models.Position, error)
	GetAccount(ctx context.Context) (*Account, error)
}

// PriceFunc supplies the latest traded price for a symbol.
type PriceFunc func(symbol string) float64

// PaperBroker simulates executions against the live price stream.
// Symbol translation (base asset -> exchange pair) is encapsulated
// here; the rest of the system never sees pair formats.
type PaperBroker struct {
	logger     *logger.Logger
	limiter    *rate.Limiter
	lastPrice  PriceFunc
	quoteAsset string

	mutex   sync.Mutex
	balance float64
	orders  map[string]*OrderAck
}

func NewPaperBroker(logger *logger.Logger, lastPrice PriceFunc, quoteAsset string, startingBalance float64) *PaperBroker {
	return &PaperBroker{
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(50*time.Millisecond), 10),
		lastPrice:  lastPrice,
		quoteAsset: quoteAsset,
		balance:    startingBalance,
		orders:     make(map[string]*OrderAck),
	}
}

func (b *PaperBroker) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if req.TIF != "" && req.TIF != TIFGoodTillCancel && req.TIF != TIFDay {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTIF, req.TIF)
	}

	pair := b.translate(req.Symbol)

	price := req.Price
	if req.Type == OrderTypeMarket || price == 0 {
		price = b.lastPrice(pair)
	}
	if price == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMarketData, pair)
	}

	ack := &OrderAck{
		OrderID: uuid.NewString(),
		Symbol:  pair,
		Side:    req.Side,
		Qty:     req.Qty,
		Price:   price,
		Time:    time.Now().UnixMilli(),
	}

	b.mutex.Lock()
	b.orders[ack.OrderID] = ack
	if req.Side == "BUY" {
		b.balance -= price * req.Qty
	} else {
		b.balance += price * req.Qty
	}
	b.mutex.Unlock()

	b.logger.Info("[PaperBroker] order filled",
		zap.String("order_id", ack.OrderID), zap.String("symbol", pair),
		zap.String("side", req.Side), zap.Float64("qty", req.Qty), zap.Float64("price", price))

	return ack, nil
}

func (b *PaperBroker) Cancel(ctx context.Context, orderID string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, ok := b.orders[orderID]; !ok {
		return fmt.Errorf("broker: unknown order %s", orderID)
	}

	delete(b.orders, orderID)
	return nil
}

func (b *PaperBroker) GetPositions(ctx context.Context) ([]*models.Position, error) {
	// the paper service keeps no positions of its own; the lifecycle
	// manager is authoritative
	return nil, nil
}

func (b *PaperBroker) GetAccount(ctx context.Context) (*Account, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return &Account{Balance: b.balance, Equity: b.balance}, nil
}

// translate maps a base asset to its exchange pair: BTC -> BTCUSDT.
// Full pair names pass through unchanged.
func (b *PaperBroker) translate(symbol string) string {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, strings.ToUpper(b.quoteAsset)) {
		return upper
	}
	return upper + strings.ToUpper(b.quoteAsset)
}
