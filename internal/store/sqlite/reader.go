package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// Reader provides read-only access to stored candles for warm-up and replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema is created
// if missing so a fresh path reads as empty rather than failing.
func NewReader(dbPath string) (*Reader, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles returns candles for tag with from <= ts < to, ascending.
// A zero to means no upper bound.
func (r *Reader) ReadCandles(ctx context.Context, tag model.Tag, from, to time.Time) ([]model.Candle, error) {
	upper := int64(1<<62 - 1)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT tag, symbol, strike, ts, open, high, low, close, volume
		FROM candles_5m
		WHERE tag = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, string(tag), from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_5m: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// ReadRange returns candles of every tag with from <= ts < to, ordered by
// timestamp then tag.
func (r *Reader) ReadRange(ctx context.Context, from, to time.Time) ([]model.Candle, error) {
	upper := int64(1<<62 - 1)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT tag, symbol, strike, ts, open, high, low, close, volume
		FROM candles_5m
		WHERE ts >= ? AND ts < ?
		ORDER BY ts ASC, tag ASC
	`, from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_5m range: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// TradingDays lists the distinct IST trading days that have NIFTY candles,
// oldest first.
func (r *Reader) TradingDays(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts FROM candles_5m WHERE tag = ? ORDER BY ts ASC`, string(model.TagNifty))
	if err != nil {
		return nil, fmt.Errorf("sqlite query trading days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("sqlite scan ts: %w", err)
		}
		d := markethours.TradingDay(time.Unix(ts, 0))
		if len(days) == 0 || days[len(days)-1] != d {
			days = append(days, d)
		}
	}
	return days, rows.Err()
}

// Count returns the number of stored candles for tag.
func (r *Reader) Count(ctx context.Context, tag model.Tag) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candles_5m WHERE tag = ?`, string(tag)).Scan(&n)
	return n, err
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var candles []model.Candle
	for rows.Next() {
		var (
			c      model.Candle
			tag    string
			symbol sql.NullString
			strike sql.NullInt64
			vol    sql.NullFloat64
			tsUnix int64
		)
		if err := rows.Scan(&tag, &symbol, &strike, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_5m: %w", err)
		}
		c.Tag = model.Tag(tag)
		c.Symbol = symbol.String
		c.Strike = int(strike.Int64)
		c.Volume = vol.Float64
		c.TS = time.Unix(tsUnix, 0).In(markethours.IST)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
