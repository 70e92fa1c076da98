package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"github.com/anvh2/sentiment-trading/internal/metrics"
	"github.com/anvh2/sentiment-trading/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id                   TEXT PRIMARY KEY,
	symbol               TEXT NOT NULL,
	strategy             TEXT NOT NULL,
	technical_action     TEXT NOT NULL,
	technical_confidence REAL NOT NULL,
	technical_reason     TEXT,
	sentiment_score      REAL NOT NULL,
	sentiment_confidence REAL NOT NULL,
	sentiment_conflict   INTEGER NOT NULL,
	final_action         TEXT NOT NULL,
	final_confidence     REAL NOT NULL,
	confidence_boost     REAL NOT NULL,
	rationale            TEXT,
	was_executed         INTEGER NOT NULL,
	execute_reason       TEXT,
	signal_time          INTEGER NOT NULL,
	execution_time       INTEGER,
	trade_id             TEXT
);

CREATE TABLE IF NOT EXISTS positions (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	strategy_id      TEXT NOT NULL,
	opened_at        INTEGER NOT NULL,
	entry_price      REAL NOT NULL,
	quantity         REAL NOT NULL,
	status           TEXT NOT NULL,
	exit_price       REAL,
	closed_at        INTEGER,
	realized_pnl     REAL,
	entry_confidence REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_closed ON positions(status, closed_at);

CREATE TABLE IF NOT EXISTS trades (
	id            TEXT PRIMARY KEY,
	position_id   TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	quantity      REAL NOT NULL,
	price         REAL NOT NULL,
	value         REAL NOT NULL,
	ts            INTEGER NOT NULL,
	is_entry      INTEGER NOT NULL,
	strategy      TEXT,
	source_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);

CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	started_at       INTEGER NOT NULL,
	starting_balance REAL NOT NULL,
	current_balance  REAL NOT NULL,
	realized_pnl     REAL NOT NULL,
	total_trades     INTEGER NOT NULL,
	winning_trades   INTEGER NOT NULL,
	active           INTEGER NOT NULL
);
`

// Store persists signals, positions, trades and sessions. Writes go
// through a bounded retry; when retries are exhausted the payload is
// flushed to the journal and the error escalates to the caller.
type Store struct {
	logger  *logger.Logger
	db      *sql.DB
	journal *Journal
	retries int
	backoff time.Duration
}

type Config struct {
	Path         string
	JournalPath  string
	RetryCount   int
	RetryBackoff time.Duration
}

func Open(logger *logger.Logger, config *Config) (*Store, error) {
	db, err := sql.Open("sqlite", config.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	// the store is an external serialized resource behind a small pool
	db.SetMaxOpenConns(4)

	journal, err := NewJournal(logger, config.JournalPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	retries := config.RetryCount
	if retries <= 0 {
		retries = 10
	}
	backoff := config.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &Store{
		logger:  logger,
		db:      db,
		journal: journal,
		retries: retries,
		backoff: backoff,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withRetry runs the write with bounded retries. In-memory state stays
// authoritative while retrying; on exhaustion the entity lands in the
// journal and the error surfaces so the process can exit.
func (s *Store) withRetry(ctx context.Context, kind string, entity interface{}, op func() error) error {
	var err error

	for attempt := 0; attempt < s.retries; attempt++ {
		if err = op(); err == nil {
			return nil
		}

		metrics.PersistenceRetries.Inc()
		s.logger.Error("[Storage] write failed, retrying",
			zap.String("kind", kind), zap.Int("attempt", attempt+1), zap.Error(err))

		select {
		case <-time.After(s.backoff):
		case <-ctx.Done():
			err = ctx.Err()
			attempt = s.retries
		}
	}

	if jerr := s.journal.Append(kind, entity); jerr != nil {
		s.logger.Error("[Storage] journal flush failed", zap.Error(jerr))
	}

	return fmt.Errorf("storage: %s write exhausted retries: %w", kind, err)
}

func (s *Store) SaveSignal(ctx context.Context, signal *models.EnhancedSignal) error {
	return s.withRetry(ctx, "signal", signal, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO signals (
				id, symbol, strategy, technical_action, technical_confidence, technical_reason,
				sentiment_score, sentiment_confidence, sentiment_conflict,
				final_action, final_confidence, confidence_boost, rationale,
				was_executed, execute_reason, signal_time, execution_time, trade_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			signal.ID, signal.Technical.Symbol, signal.Technical.StrategyID,
			string(signal.Technical.Action), signal.Technical.Confidence, signal.Technical.Reason,
			signal.SentimentScore, signal.SentimentConfidence, boolToInt(signal.Conflict),
			string(signal.FinalAction), signal.FinalConfidence, signal.ConfidenceBoost, signal.Rationale,
			boolToInt(signal.WasExecuted), signal.ExecuteReason, signal.Time, signal.ExecutionTime, signal.TradeID,
		)
		return err
	})
}

func (s *Store) SavePosition(ctx context.Context, position *models.Position) error {
	return s.withRetry(ctx, "position", position, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO positions (
				id, session_id, symbol, side, strategy_id, opened_at,
				entry_price, quantity, status, exit_price, closed_at, realized_pnl, entry_confidence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			position.ID, position.SessionID, position.Symbol, string(position.Side), position.StrategyID,
			position.OpenedAt, position.EntryPrice, position.Quantity, string(position.Status),
			position.ExitPrice, position.ClosedAt, position.RealizedPnL, position.EntryConfidence,
		)
		return err
	})
}

func (s *Store) SaveTrade(ctx context.Context, trade *models.Trade) error {
	return s.withRetry(ctx, "trade", trade, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO trades (
				id, position_id, session_id, symbol, side, quantity, price, value, ts, is_entry, strategy, source_reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trade.ID, trade.PositionID, trade.SessionID, trade.Symbol, trade.Side,
			trade.Quantity, trade.Price, trade.Value, trade.Time, boolToInt(trade.IsEntry),
			trade.Strategy, trade.SourceReason,
		)
		return err
	})
}

func (s *Store) SaveSession(ctx context.Context, session *models.TradingSession) error {
	return s.withRetry(ctx, "session", session, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO sessions (
				id, started_at, starting_balance, current_balance, realized_pnl, total_trades, winning_trades, active
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.StartedAt, session.StartingBalance, session.CurrentBalance,
			session.RealizedPnL, session.TotalTrades, session.WinningTrades, boolToInt(session.Active),
		)
		return err
	})
}

func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, symbol, side, strategy_id, opened_at,
		       entry_price, quantity, status, exit_price, closed_at, realized_pnl, entry_confidence
		FROM positions WHERE id = ?`, id)

	return scanPosition(row)
}

// ClosedPositionsSince returns positions closed at or after the cutoff.
func (s *Store) ClosedPositionsSince(ctx context.Context, since int64) ([]*models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, symbol, side, strategy_id, opened_at,
		       entry_price, quantity, status, exit_price, closed_at, realized_pnl, entry_confidence
		FROM positions WHERE status = ? AND closed_at >= ? ORDER BY closed_at`,
		string(models.PositionClosed), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Position, 0)
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, position)
	}
	return out, rows.Err()
}

// TradesForPosition returns the audit trail of one position in time
// order.
func (s *Store) TradesForPosition(ctx context.Context, positionID string) ([]*models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, session_id, symbol, side, quantity, price, value, ts, is_entry, strategy, source_reason
		FROM trades WHERE position_id = ? ORDER BY ts, is_entry DESC`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Trade, 0)
	for rows.Next() {
		trade := &models.Trade{}
		var isEntry int

		if err := rows.Scan(&trade.ID, &trade.PositionID, &trade.SessionID, &trade.Symbol, &trade.Side,
			&trade.Quantity, &trade.Price, &trade.Value, &trade.Time, &isEntry,
			&trade.Strategy, &trade.SourceReason); err != nil {
			return nil, err
		}

		trade.IsEntry = isEntry == 1
		out = append(out, trade)
	}
	return out, rows.Err()
}

func (s *Store) GetSignal(ctx context.Context, id string) (*models.EnhancedSignal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, strategy, technical_action, technical_confidence, technical_reason,
		       sentiment_score, sentiment_confidence, sentiment_conflict,
		       final_action, final_confidence, confidence_boost, rationale,
		       was_executed, execute_reason, signal_time, execution_time, trade_id
		FROM signals WHERE id = ?`, id)

	signal := &models.EnhancedSignal{Technical: &models.TechnicalSignal{}}
	var technicalAction, finalAction string
	var conflict, wasExecuted int

	err := row.Scan(&signal.ID, &signal.Technical.Symbol, &signal.Technical.StrategyID,
		&technicalAction, &signal.Technical.Confidence, &signal.Technical.Reason,
		&signal.SentimentScore, &signal.SentimentConfidence, &conflict,
		&finalAction, &signal.FinalConfidence, &signal.ConfidenceBoost, &signal.Rationale,
		&wasExecuted, &signal.ExecuteReason, &signal.Time, &signal.ExecutionTime, &signal.TradeID)
	if err != nil {
		return nil, err
	}

	signal.Technical.Action = models.Action(technicalAction)
	signal.Technical.Time = signal.Time
	signal.FinalAction = models.Action(finalAction)
	signal.Conflict = conflict == 1
	signal.WasExecuted = wasExecuted == 1
	return signal, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scanner) (*models.Position, error) {
	position := &models.Position{}
	var side, status string

	err := row.Scan(&position.ID, &position.SessionID, &position.Symbol, &side, &position.StrategyID,
		&position.OpenedAt, &position.EntryPrice, &position.Quantity, &status,
		&position.ExitPrice, &position.ClosedAt, &position.RealizedPnL, &position.EntryConfidence)
	if err != nil {
		return nil, err
	}

	position.Side = models.PositionSide(side)
	position.Status = models.PositionStatus(status)
	return position, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
