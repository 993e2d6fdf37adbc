package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists signals, closed trades and lifecycle events to SQLite
// for analysis and audit. It implements Recorder.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id     TEXT NOT NULL UNIQUE,
		side         TEXT NOT NULL,
		strike       INTEGER NOT NULL,
		symbol       TEXT,
		quantity     INTEGER NOT NULL,
		entry_price  REAL NOT NULL,
		exit_price   REAL NOT NULL,
		initial_sl   REAL NOT NULL,
		sl           REAL NOT NULL,
		tp1          REAL NOT NULL,
		tp1_hit      INTEGER NOT NULL,
		exit_reason  TEXT NOT NULL,
		pnl_points   REAL NOT NULL,
		pnl_inr      REAL NOT NULL,
		signal_time  DATETIME NOT NULL,
		entry_time   DATETIME NOT NULL,
		exit_time    DATETIME NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);

	CREATE TABLE IF NOT EXISTS signals (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		ts          DATETIME NOT NULL,
		side        TEXT NOT NULL,
		nifty_close REAL,
		ema         REAL,
		macd_hist   REAL,
		choppiness  REAL,
		option_ltp  REAL,
		strike      INTEGER
	);

	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		ts         DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		message    TEXT,
		data       TEXT
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordSignal persists an emitted signal.
func (j *Journal) RecordSignal(ctx context.Context, s SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO signals (ts, side, nifty_close, ema, macd_hist, choppiness, option_ltp, strike)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Time.Format(time.RFC3339), string(s.Side),
		nullFloat(s.NiftyClose), nullFloat(s.EMA), nullFloat(s.MACDHist),
		nullFloat(s.Chop), nullFloat(s.OptionLTP), s.Strike,
	)
	return err
}

// RecordOpen is a no-op: trades are journaled once, when they close.
func (j *Journal) RecordOpen(context.Context, Position) error { return nil }

// RecordClose persists a closed trade.
func (j *Journal) RecordClose(ctx context.Context, c ClosedPosition) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tp1 := 0
	if c.TP1Hit {
		tp1 = 1
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trades (order_id, side, strike, symbol, quantity, entry_price, exit_price,
			initial_sl, sl, tp1, tp1_hit, exit_reason, pnl_points, pnl_inr, signal_time, entry_time, exit_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.OrderID, string(c.Side), c.Strike, c.Symbol, c.Quantity,
		c.EntryPrice, c.ExitPrice, c.InitialSL, c.SL, c.TP1, tp1,
		c.ExitReason, c.PnLPoints, c.PnLINR,
		c.SignalTime.Format(time.RFC3339),
		c.EntryTime.Format(time.RFC3339),
		c.ExitTime.Format(time.RFC3339),
	)
	return err
}

// RecordEvent persists a lifecycle event with its data as JSON.
func (j *Journal) RecordEvent(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("journal event %s: %w", e.Type, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO events (ts, event_type, message, data) VALUES (?, ?, ?, ?)`,
		e.Time.Format(time.RFC3339), e.Type, e.Message, string(data))
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID         int64   `json:"id"`
	OrderID    string  `json:"order_id"`
	Side       string  `json:"side"`
	Strike     int     `json:"strike"`
	Quantity   int     `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	SL         float64 `json:"sl"`
	TP1Hit     bool    `json:"tp1_hit"`
	ExitReason string  `json:"exit_reason"`
	PnLPoints  float64 `json:"pnl_points"`
	PnLINR     float64 `json:"pnl_inr"`
	EntryTime  string  `json:"entry_time"`
	ExitTime   string  `json:"exit_time"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, side, strike, quantity, entry_price, exit_price, sl, tp1_hit,
			exit_reason, pnl_points, pnl_inr, entry_time, exit_time
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var tp1 int
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Side, &t.Strike, &t.Quantity, &t.EntryPrice,
			&t.ExitPrice, &t.SL, &tp1, &t.ExitReason, &t.PnLPoints, &t.PnLINR,
			&t.EntryTime, &t.ExitTime); err != nil {
			continue
		}
		t.TP1Hit = tp1 == 1
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CountSignals returns how many signals have been journaled.
func (j *Journal) CountSignals() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM signals`).Scan(&n)
	return n, err
}

// DB returns the underlying handle for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// nullFloat stores NaN as NULL; SQLite has no NaN.
func nullFloat(v float64) sql.NullFloat64 {
	if !finite(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
