package portfolio

import (
	"sync"
	"time"

	"niftybot/internal/markethours"
)

// Trade is the P&L-relevant part of a closed position.
type Trade struct {
	OrderID   string    `json:"order_id"`
	Side      string    `json:"side"`
	PnLPoints float64   `json:"pnl_points"`
	PnLINR    float64   `json:"pnl_inr"`
	ClosedAt  time.Time `json:"closed_at"`
}

// DailyTracker accumulates closed trades for the current IST trading day.
// Trades from an earlier day are kept in the lifetime list but drop out of
// the daily figures once a later day has been seen.
type DailyTracker struct {
	mu     sync.RWMutex
	day    string
	today  []Trade
	trades []Trade
}

// NewDailyTracker creates an empty tracker.
func NewDailyTracker() *DailyTracker {
	return &DailyTracker{
		today:  make([]Trade, 0, 16),
		trades: make([]Trade, 0, 64),
	}
}

// Record adds a closed trade and returns the day's realized P&L after it.
func (d *DailyTracker) Record(t Trade) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollLocked(t.ClosedAt)
	d.today = append(d.today, t)
	d.trades = append(d.trades, t)
	return summarizeLocked(d.today, 0, 0).Realized
}

// Roll starts a new trading day if t belongs to one. Returns true on rollover.
func (d *DailyTracker) Roll(t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rollLocked(t)
}

func (d *DailyTracker) rollLocked(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	day := markethours.TradingDay(t)
	if day == d.day {
		return false
	}
	rolled := d.day != ""
	d.day = day
	d.today = d.today[:0]
	return rolled
}

// Day returns the trading day currently tracked ("" before the first trade).
func (d *DailyTracker) Day() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.day
}

// Realized returns the day's realized P&L in INR.
func (d *DailyTracker) Realized() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return summarizeLocked(d.today, 0, 0).Realized
}

// TradesToday returns the number of trades closed today.
func (d *DailyTracker) TradesToday() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.today)
}

// Trades returns a copy of every recorded trade.
func (d *DailyTracker) Trades() []Trade {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cp := make([]Trade, len(d.trades))
	copy(cp, d.trades)
	return cp
}

// Summary returns today's statistics combined with the open book.
func (d *DailyTracker) Summary(unrealized float64, open int) Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return summarizeLocked(d.today, unrealized, open)
}

// Lifetime returns statistics over every recorded trade, used by replays
// that span several days.
func (d *DailyTracker) Lifetime(unrealized float64, open int) Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return summarizeLocked(d.trades, unrealized, open)
}

func summarizeLocked(ts []Trade, unrealized float64, open int) Summary {
	pnls := make([]float64, len(ts))
	for i, t := range ts {
		pnls[i] = t.PnLINR
	}
	return Summarize(pnls, unrealized, open)
}
