package strategy

import (
	"math"

	"niftybot/internal/indicator"
	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// Evaluator applies the Vortex gap-widening rule with the EMA trend filter.
// It is a pure function of the indicator history.
type Evaluator struct {
	params Params
}

// NewEvaluator creates an evaluator for p.
func NewEvaluator(p Params) *Evaluator {
	return &Evaluator{params: p}
}

// Name returns the preset name.
func (e *Evaluator) Name() string { return e.params.Name }

// Evaluate returns BUY_CE, BUY_PE or SideNone for history[idx].
// The caller must only invoke it after a successful indicator compute.
func (e *Evaluator) Evaluate(history []indicator.Row, idx int) model.Side {
	if idx < 2 || idx >= len(history) {
		return model.SideNone
	}
	row, prev := history[idx], history[idx-1]
	if row.TS.IsZero() || !e.InEntryWindow(row) {
		return model.SideNone
	}
	if !row.Finite() || math.IsNaN(prev.VIPlus) || math.IsNaN(prev.VIMinus) {
		return model.SideNone
	}
	if e.choppy(row.Chop) {
		return model.SideNone
	}

	gap := row.VIPlus - row.VIMinus
	prevGap := prev.VIPlus - prev.VIMinus

	switch {
	case row.VIPlus > row.VIMinus && gap > prevGap && row.Close > row.EMA:
		return model.SideCE
	case row.VIMinus > row.VIPlus && -gap > -prevGap && row.Close < row.EMA:
		return model.SidePE
	}
	return model.SideNone
}

// InEntryWindow reports whether the row's IST time lies in [EntryStart, EntryEnd].
func (e *Evaluator) InEntryWindow(row indicator.Row) bool {
	c := markethours.ClockOf(row.TS)
	return c >= e.params.EntryStart && c <= e.params.EntryEnd
}

func (e *Evaluator) choppy(chop float64) bool {
	if !e.params.ChopGate {
		return false
	}
	if math.IsNaN(chop) {
		// an undefined reading cannot clear the filter
		return true
	}
	if e.params.ChopInclusive {
		return chop >= e.params.ChopThreshold
	}
	return chop > e.params.ChopThreshold
}
