package execution

import (
	"fmt"
	"log"
	"math"
	"time"

	"niftybot/internal/model"
	"niftybot/internal/strategy"
)

// SignalQueue holds at most one signal until the next candle opens, then
// fills it at that open. States: EMPTY -> PENDING -> EMPTY.
type SignalQueue struct {
	params  strategy.Params
	ledger  *Ledger
	pending *PendingSignal
}

// NewSignalQueue creates a queue that books fills into ledger.
func NewSignalQueue(p strategy.Params, ledger *Ledger) *SignalQueue {
	return &SignalQueue{params: p, ledger: ledger}
}

// Enqueue stores sig unless a position is open or a signal is already pending.
func (q *SignalQueue) Enqueue(sig PendingSignal) error {
	if q.ledger.HasOpen() {
		log.Printf("[queue] rejected %s @ %s: position open", sig.Side, sig.SignalTime.Format("15:04"))
		return fmt.Errorf("enqueue %s: %w", sig.Side, ErrPositionOpen)
	}
	if q.pending != nil {
		log.Printf("[queue] rejected %s @ %s: %s already pending",
			sig.Side, sig.SignalTime.Format("15:04"), q.pending.Side)
		return fmt.Errorf("enqueue %s: %w", sig.Side, ErrSignalPending)
	}
	if !sig.Side.Valid() {
		return fmt.Errorf("enqueue: %w: %q", strategy.ErrInvalidSide, sig.Side)
	}
	s := sig
	q.pending = &s
	log.Printf("[queue] PENDING %s from %s candle, executes at next open",
		sig.Side, sig.SignalTime.Format("15:04"))
	return nil
}

// Pending returns the queued signal, if any.
func (q *SignalQueue) Pending() (PendingSignal, bool) {
	if q.pending == nil {
		return PendingSignal{}, false
	}
	return *q.pending, true
}

// HasPending reports whether a signal awaits execution.
func (q *SignalQueue) HasPending() bool { return q.pending != nil }

// Clear drops the pending signal.
func (q *SignalQueue) Clear() { q.pending = nil }

// Restore reinstates a pending signal loaded from persisted state.
func (q *SignalQueue) Restore(sig *PendingSignal) { q.pending = sig }

// TryExecute fills the pending signal using the candle that opened after it.
//
// It returns (nil, nil) when nothing is pending or when now is not strictly
// after the signal candle. When the leg's bar, open or ATR is unusable the
// signal is dropped and ErrMissingData returned.
func (q *SignalQueue) TryExecute(legs map[model.Side]OptionBar, now time.Time) (*Position, error) {
	if q.pending == nil {
		return nil, nil
	}
	sig := *q.pending
	if !now.After(sig.SignalTime) {
		return nil, nil
	}

	bar, ok := legs[sig.Side]
	switch {
	case !ok:
		q.pending = nil
		return nil, fmt.Errorf("execute %s: %w: no %s bar at %s", sig.Side, ErrMissingData, sig.Side.Leg(), now.Format("15:04"))
	case !finite(bar.Open):
		q.pending = nil
		return nil, fmt.Errorf("execute %s: %w: open is undefined", sig.Side, ErrMissingData)
	case !finite(bar.ATR):
		q.pending = nil
		return nil, fmt.Errorf("execute %s: %w: option ATR is undefined", sig.Side, ErrMissingData)
	}

	entry := strategy.Round2(bar.Open + q.params.Slippage)
	levels, err := q.params.EntryLevels(sig.Side, entry, bar.ATR)
	if err != nil {
		q.pending = nil
		return nil, err
	}

	id, err := q.ledger.Open(Entry{
		Side:       sig.Side,
		Strike:     bar.Strike,
		Symbol:     bar.Symbol,
		Price:      entry,
		Levels:     levels,
		EntryTime:  now,
		SignalTime: sig.SignalTime,
	})
	q.pending = nil
	if err != nil {
		return nil, err
	}

	log.Printf("[queue] EXECUTED %s signal=%s entry=%s open=%.2f+%.2f atr=%.2f atr_sl=%.2f",
		sig.Side, sig.SignalTime.Format("15:04"), now.Format("15:04"),
		bar.Open, q.params.Slippage, bar.ATR, levels.ATRBasedSL)

	pos, _ := q.ledger.Get(id)
	return &pos, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
