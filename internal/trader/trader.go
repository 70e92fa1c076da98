package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/alerts"
	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/metrics"
	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	MinExecConfidence float64
	MinExitConfidence float64
	StopLossPct       float64
	TakeProfitPct     float64
	MaxHold           time.Duration // 0 disables the time-based exit
	PositionCost      float64
	RetryAttempts     int
	RetryBase         time.Duration
	StartingBalance   float64 // fallback when the broker reports none
}

// positionState serializes all transitions of one position.
type positionState struct {
	mutex    sync.Mutex
	position *models.Position
}

// Trader owns positions and sessions: it executes enhanced signals
// against the broker, evaluates exit rules on every tick and keeps the
// audit trail persisted.
type Trader struct {
	logger *logger.Logger
	broker Broker
	store  *storage.Store
	alerts alerts.Sink
	config *Config

	mutex      sync.RWMutex
	session    *models.TradingSession
	positions  map[string]*positionState // position id -> state
	openByKey  map[string]string         // symbol|strategy -> open position id
	lastPrices map[string]float64
	day        string

	fatal func(msg string, fields ...zap.Field)

	wait        sync.WaitGroup
	quitChannel chan struct{}
}

func New(logger *logger.Logger, broker Broker, store *storage.Store, sink alerts.Sink, config *Config) *Trader {
	return &Trader{
		logger:      logger,
		broker:      broker,
		store:       store,
		alerts:      sink,
		config:      config,
		positions:   make(map[string]*positionState),
		openByKey:   make(map[string]string),
		lastPrices:  make(map[string]float64),
		fatal:       logger.Fatal,
		quitChannel: make(chan struct{}),
	}
}

// Start opens the trading session, taking the starting balance from
// the broker and falling back to the configured default when the
// adapter reports none.
func (t *Trader) Start(ctx context.Context) error {
	balance := t.config.StartingBalance

	if account, err := t.broker.GetAccount(ctx); err == nil && account != nil && account.Balance > 0 {
		balance = account.Balance
	}

	session := &models.TradingSession{
		ID:              uuid.NewString(),
		StartedAt:       time.Now().UnixMilli(),
		StartingBalance: balance,
		CurrentBalance:  balance,
		Active:          true,
	}

	t.mutex.Lock()
	t.session = session
	t.day = time.Now().UTC().Format("2006-01-02")
	t.mutex.Unlock()

	if err := t.store.SaveSession(ctx, session); err != nil {
		return err
	}

	t.logger.Info("[Trader] session opened",
		zap.String("session", session.ID), zap.Float64("balance", balance))
	return nil
}

// Stop drains in-flight work for at most the given timeout.
func (t *Trader) Stop(timeout time.Duration) {
	close(t.quitChannel)

	done := make(chan struct{})
	go func() {
		t.wait.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.logger.Warn("[Trader] drain timeout expired with work in flight")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.mutex.RLock()
	session := t.session
	t.mutex.RUnlock()

	if session != nil {
		session.Active = false
		if err := t.store.SaveSession(ctx, session); err != nil {
			t.logger.Error("[Trader] failed to persist session on shutdown", zap.Error(err))
		}
	}
}

// Session returns a copy of the session aggregates.
func (t *Trader) Session() models.TradingSession {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.session == nil {
		return models.TradingSession{}
	}
	return *t.session
}

// LastPrice returns the latest observed price for the symbol.
func (t *Trader) LastPrice(symbol string) float64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.lastPrices[symbol]
}

// OpenPositions returns copies of the currently open positions.
func (t *Trader) OpenPositions() []models.Position {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	out := make([]models.Position, 0, len(t.openByKey))
	for _, id := range t.openByKey {
		if state := t.positions[id]; state != nil {
			out = append(out, *state.position)
		}
	}
	return out
}

// HandleSignal routes one enhanced signal through the position state
// machine and persists it with the execution outcome recorded.
func (t *Trader) HandleSignal(ctx context.Context, signal *models.EnhancedSignal) error {
	t.wait.Add(1)
	defer t.wait.Done()

	t.execute(ctx, signal)

	if err := t.store.SaveSignal(ctx, signal); err != nil {
		return err
	}
	return nil
}

func (t *Trader) execute(ctx context.Context, signal *models.EnhancedSignal) {
	symbol := signal.Technical.Symbol

	switch signal.FinalAction {
	case models.ActionHold, models.ActionSkip:
		signal.ExecuteReason = fmt.Sprintf("no execution for %s", signal.FinalAction)
		return
	}

	// a confident opposing signal closes the open position first
	if state := t.openState(symbol, signal.Technical.StrategyID); state != nil {
		if t.opposes(state, signal) && signal.FinalConfidence >= t.config.MinExitConfidence {
			price := t.LastPrice(symbol)
			t.closePosition(ctx, state, price, fmt.Sprintf("opposing signal %s@%.2f", signal.FinalAction, signal.FinalConfidence))
			signal.WasExecuted = true
			signal.ExecutionTime = time.Now().UnixMilli()
			signal.ExecuteReason = "closed open position"
			return
		}

		// duplicate entry for the same symbol/strategy is ignored
		signal.ExecuteReason = "duplicate entry ignored, position already open"
		return
	}

	if signal.FinalConfidence < t.config.MinExecConfidence {
		signal.ExecuteReason = fmt.Sprintf("confidence %.2f below execution gate %.2f",
			signal.FinalConfidence, t.config.MinExecConfidence)
		return
	}

	// reserve the slot so one logical order never opens two positions
	key := positionKey(symbol, signal.Technical.StrategyID)

	t.mutex.Lock()
	if _, exists := t.openByKey[key]; exists {
		t.mutex.Unlock()
		signal.ExecuteReason = "duplicate entry ignored, position already open"
		return
	}
	t.openByKey[key] = pendingPosition
	t.mutex.Unlock()

	if !t.openPosition(ctx, signal) {
		t.mutex.Lock()
		if t.openByKey[key] == pendingPosition {
			delete(t.openByKey, key)
		}
		t.mutex.Unlock()
	}
}

const pendingPosition = "pending"

func (t *Trader) opposes(state *positionState, signal *models.EnhancedSignal) bool {
	state.mutex.Lock()
	defer state.mutex.Unlock()

	side := state.position.Side
	return (side == models.SideLong && signal.FinalAction == models.ActionSell) ||
		(side == models.SideShort && signal.FinalAction == models.ActionBuy)
}

func (t *Trader) openState(symbol, strategyID string) *positionState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	id, ok := t.openByKey[positionKey(symbol, strategyID)]
	if !ok || id == pendingPosition {
		return nil
	}
	return t.positions[id]
}

func (t *Trader) openPosition(ctx context.Context, signal *models.EnhancedSignal) bool {
	symbol := signal.Technical.Symbol
	price := t.LastPrice(symbol)
	if price <= 0 {
		signal.ExecuteReason = "no market data yet"
		return false
	}

	qty := t.config.PositionCost / price

	side := "BUY"
	positionSide := models.SideLong
	if signal.FinalAction == models.ActionSell {
		side = "SELL"
		positionSide = models.SideShort
	}

	ack, err := t.placeWithRetry(ctx, &OrderRequest{
		Symbol: symbol,
		Side:   side,
		Qty:    qty,
		Type:   OrderTypeMarket,
		TIF:    TIFGoodTillCancel,
	})
	if err != nil {
		metrics.BrokerFailures.Inc()
		signal.ExecuteReason = fmt.Sprintf("broker rejected after retries: %v", err)

		t.alerts.SendAlert(ctx, &alerts.Alert{
			Kind:     alerts.KindBrokerError,
			Severity: alerts.SeverityCritical,
			Message:  "order execution failed after exhausted retries",
			Fields:   map[string]interface{}{"symbol": symbol, "side": side, "error": err.Error()},
		})
		return false
	}

	entryPrice := ack.Price
	if entryPrice == 0 {
		entryPrice = price
	}

	now := time.Now().UnixMilli()

	t.mutex.RLock()
	sessionID := t.session.ID
	t.mutex.RUnlock()

	position := &models.Position{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Symbol:          symbol,
		Side:            positionSide,
		StrategyID:      signal.Technical.StrategyID,
		OpenedAt:        now,
		EntryPrice:      entryPrice,
		Quantity:        ack.Qty,
		Status:          models.PositionOpen,
		EntryConfidence: signal.FinalConfidence,
	}

	trade := &models.Trade{
		ID:           uuid.NewString(),
		PositionID:   position.ID,
		SessionID:    sessionID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     ack.Qty,
		Price:        entryPrice,
		Value:        entryPrice * ack.Qty,
		Time:         now,
		IsEntry:      true,
		Strategy:     signal.Technical.StrategyID,
		SourceReason: signal.Technical.Reason,
	}

	first := false

	t.mutex.Lock()
	t.positions[position.ID] = &positionState{position: position}
	t.openByKey[positionKey(symbol, position.StrategyID)] = position.ID
	first = len(t.positions) == 1
	t.mutex.Unlock()

	metrics.OpenPositions.Inc()

	signal.WasExecuted = true
	signal.ExecutionTime = now
	signal.ExecuteReason = "executed"
	signal.TradeID = trade.ID

	if err := t.store.SavePosition(ctx, position); err != nil {
		t.logger.Error("[Trader] position persist failed, in-memory state authoritative", zap.Error(err))
	}
	if err := t.store.SaveTrade(ctx, trade); err != nil {
		t.logger.Error("[Trader] trade persist failed, in-memory state authoritative", zap.Error(err))
	}

	t.logger.Info("[Trader] position opened",
		zap.String("position", position.ID), zap.String("symbol", symbol),
		zap.String("side", string(positionSide)), zap.Float64("entry", entryPrice), zap.Float64("qty", ack.Qty))

	if first {
		t.alerts.SendAlert(ctx, &alerts.Alert{
			Kind:     alerts.KindFirstTrade,
			Severity: alerts.SeverityInfo,
			Message:  "first trade of the session",
			Fields:   map[string]interface{}{"symbol": symbol, "side": side, "price": entryPrice},
		})
	}

	return true
}

// placeWithRetry retries transient broker errors with exponential
// backoff. Exactly one ack creates exactly one position.
func (t *Trader) placeWithRetry(ctx context.Context, req *OrderRequest) (*OrderAck, error) {
	var lastErr error
	delay := t.config.RetryBase

	for attempt := 0; attempt < t.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			metrics.BrokerRetries.Inc()

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		ack, err := t.broker.PlaceOrder(ctx, req)
		if err == nil {
			return ack, nil
		}

		lastErr = err
		t.logger.Warn("[Trader] placeOrder failed",
			zap.Int("attempt", attempt+1), zap.String("symbol", req.Symbol), zap.Error(err))
	}

	return nil, lastErr
}

// OnTick updates the last price and evaluates the exit rules of every
// open position on the symbol.
func (t *Trader) OnTick(ctx context.Context, tick *models.Tick) {
	t.wait.Add(1)
	defer t.wait.Done()

	t.mutex.Lock()
	t.lastPrices[tick.Symbol] = tick.Price
	t.mutex.Unlock()

	t.rolloverDay(ctx)

	for _, state := range t.statesFor(tick.Symbol) {
		if reason, ok := t.exitReason(state, tick); ok {
			t.closePosition(ctx, state, tick.Price, reason)
		}
	}
}

func (t *Trader) statesFor(symbol string) []*positionState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	out := make([]*positionState, 0)
	for _, id := range t.openByKey {
		state := t.positions[id]
		if state != nil && state.position.Symbol == symbol {
			out = append(out, state)
		}
	}
	return out
}

func (t *Trader) exitReason(state *positionState, tick *models.Tick) (string, bool) {
	state.mutex.Lock()
	defer state.mutex.Unlock()

	position := state.position
	if position.Status != models.PositionOpen {
		return "", false
	}

	if position.Side == models.SideLong {
		if tick.Price <= position.EntryPrice*(1-t.config.StopLossPct) {
			return fmt.Sprintf("stop loss at %.4f", tick.Price), true
		}
		if tick.Price >= position.EntryPrice*(1+t.config.TakeProfitPct) {
			return fmt.Sprintf("take profit at %.4f", tick.Price), true
		}
	} else {
		if tick.Price >= position.EntryPrice*(1+t.config.StopLossPct) {
			return fmt.Sprintf("stop loss at %.4f", tick.Price), true
		}
		if tick.Price <= position.EntryPrice*(1-t.config.TakeProfitPct) {
			return fmt.Sprintf("take profit at %.4f", tick.Price), true
		}
	}

	if t.config.MaxHold > 0 && tick.Time-position.OpenedAt >= t.config.MaxHold.Milliseconds() {
		return "max hold expired", true
	}

	return "", false
}

// closePosition performs the single permitted OPEN -> CLOSED
// transition. Concurrent exit attempts all read OPEN but only the
// first write succeeds; losers are no-ops.
func (t *Trader) closePosition(ctx context.Context, state *positionState, price float64, reason string) {
	state.mutex.Lock()

	position := state.position
	if position.Status == models.PositionClosed {
		state.mutex.Unlock()
		return
	}

	if position.Status != models.PositionOpen {
		state.mutex.Unlock()
		t.fatal("[Trader] invariant violation: closing a position that is not OPEN",
			zap.String("position", position.ID), zap.String("status", string(position.Status)))
		return
	}

	if price <= 0 {
		price = position.EntryPrice
	}

	side := "SELL"
	direction := 1.0
	if position.Side == models.SideShort {
		side = "BUY"
		direction = -1
	}

	now := time.Now().UnixMilli()

	position.Status = models.PositionClosed
	position.ExitPrice = price
	position.ClosedAt = now
	position.RealizedPnL = (price - position.EntryPrice) * position.Quantity * direction

	trade := &models.Trade{
		ID:           uuid.NewString(),
		PositionID:   position.ID,
		SessionID:    position.SessionID,
		Symbol:       position.Symbol,
		Side:         side,
		Quantity:     position.Quantity,
		Price:        price,
		Value:        price * position.Quantity,
		Time:         now,
		IsEntry:      false,
		Strategy:     position.StrategyID,
		SourceReason: reason,
	}

	state.mutex.Unlock()

	if _, err := t.placeWithRetry(ctx, &OrderRequest{
		Symbol: position.Symbol,
		Side:   side,
		Qty:    position.Quantity,
		Type:   OrderTypeMarket,
		TIF:    TIFGoodTillCancel,
	}); err != nil {
		// the paper position is already closed in memory; record the
		// broker failure loudly
		metrics.BrokerFailures.Inc()
		t.logger.Error("[Trader] exit order failed after retries", zap.String("position", position.ID), zap.Error(err))
	}

	// session aggregates move only on CLOSED transitions
	t.mutex.Lock()
	delete(t.openByKey, positionKey(position.Symbol, position.StrategyID))

	t.session.TotalTrades++
	t.session.RealizedPnL += position.RealizedPnL
	t.session.CurrentBalance += position.RealizedPnL
	if position.RealizedPnL > 0 {
		t.session.WinningTrades++
	}
	session := *t.session
	t.mutex.Unlock()

	metrics.OpenPositions.Dec()

	if err := t.store.SavePosition(ctx, position); err != nil {
		t.logger.Error("[Trader] position persist failed, in-memory state authoritative", zap.Error(err))
	}
	if err := t.store.SaveTrade(ctx, trade); err != nil {
		t.logger.Error("[Trader] trade persist failed, in-memory state authoritative", zap.Error(err))
	}
	if err := t.store.SaveSession(ctx, &session); err != nil {
		t.logger.Error("[Trader] session persist failed, in-memory state authoritative", zap.Error(err))
	}

	t.logger.Info("[Trader] position closed",
		zap.String("position", position.ID), zap.Float64("exit", price),
		zap.Float64("pnl", position.RealizedPnL), zap.String("reason", reason))
}

// rolloverDay emits the daily summary alert once per UTC day.
func (t *Trader) rolloverDay(ctx context.Context) {
	today := time.Now().UTC().Format("2006-01-02")

	t.mutex.Lock()
	if t.day == today || t.session == nil {
		t.mutex.Unlock()
		return
	}
	t.day = today
	session := *t.session
	t.mutex.Unlock()

	t.alerts.SendAlert(ctx, &alerts.Alert{
		Kind:     alerts.KindDailySummary,
		Severity: alerts.SeverityInfo,
		Message:  "daily session summary",
		Fields: map[string]interface{}{
			"trades":   session.TotalTrades,
			"wins":     session.WinningTrades,
			"win_rate": fmt.Sprintf("%.2f", session.WinRate()),
			"pnl":      fmt.Sprintf("%.2f", session.RealizedPnL),
			"balance":  fmt.Sprintf("%.2f", session.CurrentBalance),
		},
	})
}

func positionKey(symbol, strategyID string) string {
	return symbol + "|" + strategyID
}
