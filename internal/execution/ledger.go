package execution

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"niftybot/internal/model"
	"niftybot/internal/portfolio"
	"niftybot/internal/strategy"
)

// Entry describes a fill the ledger should book.
type Entry struct {
	Side       model.Side
	Strike     int
	Symbol     string
	Price      float64
	Levels     strategy.Levels
	EntryTime  time.Time
	SignalTime time.Time
}

// Ledger owns every open and closed paper position. At most one position
// is open at a time.
type Ledger struct {
	mu      sync.RWMutex
	params  strategy.Params
	open    map[string]*Position
	closed  []ClosedPosition
	tracker *portfolio.DailyTracker
	newID   func() string
}

// NewLedger creates an empty ledger. tracker may be nil.
func NewLedger(p strategy.Params, tracker *portfolio.DailyTracker) *Ledger {
	if tracker == nil {
		tracker = portfolio.NewDailyTracker()
	}
	return &Ledger{
		params:  p,
		open:    make(map[string]*Position),
		closed:  make([]ClosedPosition, 0, 32),
		tracker: tracker,
		newID:   newOrderID,
	}
}

func newOrderID() string {
	return uuid.NewString()[:8]
}

// Tracker exposes the daily P&L tracker the ledger feeds.
func (l *Ledger) Tracker() *portfolio.DailyTracker { return l.tracker }

// Open books a new position and returns its order id.
func (l *Ledger) Open(e Entry) (string, error) {
	if !e.Side.Valid() {
		return "", fmt.Errorf("open: %w: %q", strategy.ErrInvalidSide, e.Side)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.open) > 0 {
		return "", fmt.Errorf("open %s: %w", e.Side, ErrPositionOpen)
	}

	id := l.newID()
	pos := &Position{
		OrderID:    id,
		Side:       e.Side,
		Strike:     e.Strike,
		Symbol:     e.Symbol,
		EntryPrice: e.Price,
		Quantity:   l.params.LotSize,
		InitialSL:  e.Levels.SL,
		SL:         e.Levels.SL,
		TP1:        e.Levels.TP1,
		EntryTime:  e.EntryTime,
		SignalTime: e.SignalTime,
		Highest:    e.Price,
		Current:    e.Price,
		Status:     StatusOpen,
	}
	l.open[id] = pos

	log.Printf("[ledger] OPEN %s %s %d @ %.2f sl=%.2f tp1=%.2f qty=%d",
		id, e.Side, e.Strike, e.Price, pos.SL, pos.TP1, pos.Quantity)
	return id, nil
}

// Update marks the position to price. Returns false for an unknown id.
func (l *Ledger) Update(id string, price float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[id]
	if !ok {
		return false
	}
	pos.Current = price
	if price > pos.Highest {
		pos.Highest = price
	}
	pos.Unrealized = strategy.Round2((price - pos.EntryPrice) * float64(pos.Quantity))
	return true
}

// Mark refreshes current price and unrealized P&L from an intra-candle
// tick. Unlike Update it leaves the highest price alone, so ticks never
// move a trailing stop.
func (l *Ledger) Mark(id string, price float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[id]
	if !ok || !finite(price) {
		return false
	}
	pos.Current = price
	pos.Unrealized = strategy.Round2((price - pos.EntryPrice) * float64(pos.Quantity))
	return true
}

// CheckTP1 flips TP1Hit when high reaches TP1. It returns true only on the
// candle where the flag first becomes set.
func (l *Ledger) CheckTP1(id string, high float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[id]
	if !ok || pos.TP1Hit {
		return false
	}
	if high >= pos.TP1 {
		pos.TP1Hit = true
		return true
	}
	return false
}

// RaiseSL moves the stop to sl when that is higher than the current stop.
// Lower or undefined values are ignored.
func (l *Ledger) RaiseSL(id string, sl float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[id]
	if !ok || math.IsNaN(sl) || sl <= pos.SL {
		return false
	}
	log.Printf("[ledger] %s SL %.2f -> %.2f", id, pos.SL, sl)
	pos.SL = sl
	return true
}

// Close exits the position. Closing an id that is not open is a programming
// error and panics.
func (l *Ledger) Close(id string, exitPrice float64, reason string, at time.Time) ClosedPosition {
	cp := func() ClosedPosition {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.closeLocked(l.mustOpen(id), exitPrice, reason, at)
	}()

	l.tracker.Record(portfolio.Trade{
		OrderID:   cp.OrderID,
		Side:      string(cp.Side),
		PnLPoints: cp.PnLPoints,
		PnLINR:    cp.PnLINR,
		ClosedAt:  cp.ExitTime,
	})
	return cp
}

// ForceCloseAll closes every open position with reason "Force EOD Close".
// A side missing from prices exits at the position's last marked price.
func (l *Ledger) ForceCloseAll(prices map[model.Side]float64, at time.Time) []ClosedPosition {
	var out []ClosedPosition
	for _, pos := range l.OpenPositions() {
		price, ok := prices[pos.Side]
		if !ok || math.IsNaN(price) {
			price = pos.Current
		}
		out = append(out, l.Close(pos.OrderID, price, ReasonForce, at))
	}
	return out
}

func (l *Ledger) mustOpen(id string) *Position {
	pos, ok := l.open[id]
	if !ok {
		panic(fmt.Errorf("close %q: %w", id, ErrUnknownOrder))
	}
	return pos
}

func (l *Ledger) closeLocked(pos *Position, exitPrice float64, reason string, at time.Time) ClosedPosition {
	delete(l.open, pos.OrderID)

	points := strategy.Round2(exitPrice - pos.EntryPrice)
	inr := strategy.Round2(points*float64(pos.Quantity) - l.params.CostPerTrade)

	pos.Status = StatusClosed
	pos.Current = exitPrice
	pos.Unrealized = 0
	cp := ClosedPosition{
		Position:   *pos,
		ExitPrice:  exitPrice,
		ExitTime:   at,
		ExitReason: reason,
		PnLPoints:  points,
		PnLINR:     inr,
	}
	l.closed = append(l.closed, cp)

	log.Printf("[ledger] CLOSE %s %s @ %.2f reason=%q pnl=%.2f pts / %.2f INR",
		pos.OrderID, pos.Side, exitPrice, reason, points, inr)
	return cp
}

// Get returns a copy of an open position.
func (l *Ledger) Get(id string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[id]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of the open positions ordered by entry time.
func (l *Ledger) OpenPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

// HasOpen reports whether any position is open.
func (l *Ledger) HasOpen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.open) > 0
}

// Closed returns a copy of every closed position.
func (l *Ledger) Closed() []ClosedPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]ClosedPosition, len(l.closed))
	copy(cp, l.closed)
	return cp
}

// Unrealized sums open positions' mark-to-market P&L.
func (l *Ledger) Unrealized() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum float64
	for _, p := range l.open {
		sum += p.Unrealized
	}
	return strategy.Round2(sum)
}

// Stats returns the current trading day's statistics.
func (l *Ledger) Stats() portfolio.Summary {
	open := len(l.OpenPositions())
	return l.tracker.Summary(l.Unrealized(), open)
}

// LifetimeStats covers every trade the ledger has closed.
func (l *Ledger) LifetimeStats() portfolio.Summary {
	open := len(l.OpenPositions())
	return l.tracker.Lifetime(l.Unrealized(), open)
}

// LedgerState is the persisted form of a ledger.
type LedgerState struct {
	Open   []Position       `json:"open"`
	Closed []ClosedPosition `json:"closed"`
}

// State snapshots the ledger for persistence.
func (l *Ledger) State() LedgerState {
	return LedgerState{Open: l.OpenPositions(), Closed: l.Closed()}
}

// Restore replaces the ledger contents with st. The daily tracker is
// replayed from the closed list.
func (l *Ledger) Restore(st LedgerState) error {
	if len(st.Open) > 1 {
		return fmt.Errorf("restore: %d open positions: %w", len(st.Open), ErrPositionOpen)
	}

	l.mu.Lock()
	l.open = make(map[string]*Position, len(st.Open))
	for i := range st.Open {
		p := st.Open[i]
		p.Status = StatusOpen
		l.open[p.OrderID] = &p
	}
	l.closed = append(l.closed[:0], st.Closed...)
	l.mu.Unlock()

	for _, c := range st.Closed {
		l.tracker.Record(portfolio.Trade{
			OrderID:   c.OrderID,
			Side:      string(c.Side),
			PnLPoints: c.PnLPoints,
			PnLINR:    c.PnLINR,
			ClosedAt:  c.ExitTime,
		})
	}
	return nil
}
