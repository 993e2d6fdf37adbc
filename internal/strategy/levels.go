package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// ErrInvalidSide is returned when a level calculation receives a side other
// than BUY_CE or BUY_PE. Every call site is internally constrained, so
// hitting it means a programming error upstream.
var ErrInvalidSide = errors.New("strategy: invalid side")

// Levels are the protective and target prices set at entry.
type Levels struct {
	SL         float64 `json:"sl"`
	TP1        float64 `json:"tp1"`
	ATRBasedSL float64 `json:"atr_based_sl"` // uncapped SL distance, for logging
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// EntryLevels sizes SL and TP1 for a long-premium entry:
//
//	sl  = round2(entry - min(SLMultiplier×atr, MaxSLPoints))
//	tp1 = entry + TP1Points
func (p Params) EntryLevels(side model.Side, entry, atr float64) (Levels, error) {
	if !side.Valid() {
		return Levels{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	atrSL := p.SLMultiplier * atr
	dist := math.Min(atrSL, p.MaxSLPoints)
	return Levels{
		SL:         Round2(entry - dist),
		TP1:        entry + p.TP1Points,
		ATRBasedSL: atrSL,
	}, nil
}

// LockedSL is the profit-lock stop applied when TP1 is hit.
func (p Params) LockedSL(entry float64) float64 {
	return Round2(entry + p.LockPoints)
}

// TrailingSL is the ATR trail candidate for a position after TP1.
func (p Params) TrailingSL(highest, atr float64) float64 {
	return Round2(highest - p.TrailATRMultiplier*atr)
}

// SLHit reports whether the option close has reached the stop.
func (p Params) SLHit(close, sl float64) bool {
	return close <= sl
}

// TrendReversed reports the post-TP1 exit: for calls the index closing under
// its EMA or a negative MACD histogram; the mirror for puts.
func (p Params) TrendReversed(side model.Side, niftyClose, ema, macdHist float64) bool {
	switch side {
	case model.SideCE:
		return niftyClose < ema || macdHist < 0
	case model.SidePE:
		return niftyClose > ema || macdHist > 0
	}
	return false
}

// PastEOD reports whether t is at or after the end-of-day exit time.
func (p Params) PastEOD(t time.Time) bool {
	return markethours.ClockOf(t) >= p.EODExit
}
