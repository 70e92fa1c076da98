package binance

import (
	"errors"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/orderbook"
	"go.uber.org/zap"
)

const depthLevels = 20

// DepthStream adapts the exchange partial-depth websocket to the
// analyzer's transport contract. Partial depth events carry the full
// top-of-book, so every update is a snapshot.
type DepthStream struct {
	binance *Binance
}

func NewDepthStream(binance *Binance) *DepthStream {
	return &DepthStream{binance: binance}
}

func (s *DepthStream) Serve(symbol string, handler func(*orderbook.DepthUpdate), stop <-chan struct{}) error {
	errCh := make(chan error, 1)

	doneC, stopC, err := futures.WsPartialDepthServeWithRate(symbol, depthLevels, 100*time.Millisecond, func(event *futures.WsDepthEvent) {
		handler(&orderbook.DepthUpdate{
			Symbol:     event.Symbol,
			Bids:       convertBids(event.Bids),
			Asks:       convertAsks(event.Asks),
			Time:       event.Time,
			IsSnapshot: true,
		})
	}, func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	if err != nil {
		return err
	}

	select {
	case <-stop:
		close(stopC)
		return nil

	case err := <-errCh:
		s.binance.logger.Error("[DepthStream] stream error", zap.String("symbol", symbol), zap.Error(err))
		close(stopC)
		return err

	case <-doneC:
		return errors.New("binance: depth stream closed")
	}
}

func convertBids(levels []futures.Bid) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, parseLevel(l.Price, l.Quantity))
	}
	return out
}

func convertAsks(levels []futures.Ask) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, parseLevel(l.Price, l.Quantity))
	}
	return out
}

func parseLevel(price, qty string) models.PriceLevel {
	p, _ := strconv.ParseFloat(price, 64)
	q, _ := strconv.ParseFloat(qty, 64)
	return models.PriceLevel{Price: p, Size: q}
}
