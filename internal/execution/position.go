// Package execution simulates the order lifecycle: the T+1 signal queue,
// the position ledger with its exit state machine, and the trade journal.
// No order ever leaves the process.
package execution

import (
	"context"
	"time"

	"niftybot/internal/model"
)

// Status is a position's lifecycle state.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Exit reasons, in evaluation priority order. ReasonForce is only produced
// by ForceCloseAll.
const (
	ReasonSL    = "SL Hit"
	ReasonTrend = "MACD/EMA Exit"
	ReasonEOD   = "EOD Exit"
	ReasonForce = "Force EOD Close"
)

// Position is an open paper position.
type Position struct {
	OrderID    string     `json:"order_id"`
	Side       model.Side `json:"side"`
	Strike     int        `json:"strike"`
	Symbol     string     `json:"symbol,omitempty"`
	EntryPrice float64    `json:"entry_price"`
	Quantity   int        `json:"quantity"`
	InitialSL  float64    `json:"initial_sl"`
	SL         float64    `json:"sl"`
	TP1        float64    `json:"tp1"`
	TP1Hit     bool       `json:"tp1_hit"`
	EntryTime  time.Time  `json:"entry_time"`
	SignalTime time.Time  `json:"signal_time"`

	Highest    float64 `json:"highest_price"`
	Current    float64 `json:"current_price"`
	Unrealized float64 `json:"unrealized_pnl_inr"`
	Status     Status  `json:"status"`
}

// ClosedPosition is a position after exit, with its realized P&L.
type ClosedPosition struct {
	Position
	ExitPrice  float64   `json:"exit_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitReason string    `json:"exit_reason"`
	PnLPoints  float64   `json:"pnl_points"`
	PnLINR     float64   `json:"pnl_inr"`
}

// Winner reports whether the trade made money after costs.
func (c ClosedPosition) Winner() bool { return c.PnLINR > 0 }

// OptionBar is the option-leg data the executor and exit logic read for
// one candle.
type OptionBar struct {
	Symbol string    `json:"symbol"`
	Strike int       `json:"strike"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	ATR    float64   `json:"atr"`
}

// PendingSignal is a signal waiting for the next candle's open.
type PendingSignal struct {
	Side       model.Side `json:"side"`
	SignalTime time.Time  `json:"signal_time"`
	NiftyClose float64    `json:"nifty_close"`
}

// SignalRecord is what gets logged for every emitted signal.
type SignalRecord struct {
	Time       time.Time  `json:"timestamp"`
	Side       model.Side `json:"side"`
	NiftyClose float64    `json:"nifty_close"`
	EMA        float64    `json:"ema21"`
	MACDHist   float64    `json:"macd_hist"`
	Chop       float64    `json:"choppiness"`
	OptionLTP  float64    `json:"option_ltp"`
	Strike     int        `json:"strike"`
}

// Event is a free-form lifecycle event (TP1 hit, dropped signal, ...).
type Event struct {
	Time    time.Time              `json:"timestamp"`
	Type    string                 `json:"event_type"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Recorder receives trade lifecycle records. Implementations must not
// block the trading loop for long; errors are logged by the caller.
type Recorder interface {
	RecordSignal(ctx context.Context, s SignalRecord) error
	RecordOpen(ctx context.Context, p Position) error
	RecordClose(ctx context.Context, c ClosedPosition) error
	RecordEvent(ctx context.Context, e Event) error
}

// Recorders fans every record out to each member and returns the first error.
type Recorders []Recorder

func (rs Recorders) RecordSignal(ctx context.Context, s SignalRecord) error {
	return rs.each(func(r Recorder) error { return r.RecordSignal(ctx, s) })
}

func (rs Recorders) RecordOpen(ctx context.Context, p Position) error {
	return rs.each(func(r Recorder) error { return r.RecordOpen(ctx, p) })
}

func (rs Recorders) RecordClose(ctx context.Context, c ClosedPosition) error {
	return rs.each(func(r Recorder) error { return r.RecordClose(ctx, c) })
}

func (rs Recorders) RecordEvent(ctx context.Context, e Event) error {
	return rs.each(func(r Recorder) error { return r.RecordEvent(ctx, e) })
}

func (rs Recorders) each(fn func(Recorder) error) error {
	var first error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := fn(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
