package execution

import (
	"time"

	"niftybot/internal/model"
	"niftybot/internal/strategy"
)

// ExitInputs is the market state a position's exit rules read for one candle.
type ExitInputs struct {
	At          time.Time
	OptionClose float64
	OptionHigh  float64
	OptionATR   float64
	NiftyClose  float64
	EMA         float64
	MACDHist    float64
}

// EvaluateExit applies the exit rules in priority order and returns the
// reason and price of the first that fires.
//
//  1. the candle the position was entered on never exits
//  2. close <= SL: "SL Hit" at the stop price
//  3. after TP1, index trend reversal: "MACD/EMA Exit" at the option close
//  4. at or after the EOD time: "EOD Exit" at the option close
func EvaluateExit(p strategy.Params, pos Position, in ExitInputs) (string, float64, bool) {
	if in.At.Equal(pos.EntryTime) {
		return "", 0, false
	}
	if p.SLHit(in.OptionClose, pos.SL) {
		return ReasonSL, pos.SL, true
	}
	if pos.TP1Hit && p.TrendReversed(pos.Side, in.NiftyClose, in.EMA, in.MACDHist) {
		return ReasonTrend, in.OptionClose, true
	}
	if p.PastEOD(in.At) {
		return ReasonEOD, in.OptionClose, true
	}
	return "", 0, false
}

// StepResult reports what one candle did to a position.
type StepResult struct {
	Skipped  bool            // entry candle, or no usable option price
	TP1Hit   bool            // TP1 was first reached on this candle
	SLMoved  bool            // the stop was raised
	SL       float64         // stop after this candle
	Closed   *ClosedPosition // non-nil when the position exited
	Position Position        // state after the candle (pre-close when Closed)
}

// Step advances one open position by one closed candle: mark to market,
// TP1 edge check, stop ratchet per the trail policy, then exits.
func (l *Ledger) Step(id string, in ExitInputs) StepResult {
	pos, ok := l.Get(id)
	if !ok {
		return StepResult{Skipped: true}
	}
	if in.At.Equal(pos.EntryTime) || !finite(in.OptionClose) {
		return StepResult{Skipped: true, SL: pos.SL, Position: pos}
	}

	var res StepResult
	l.Update(id, in.OptionClose)

	high := in.OptionHigh
	if !finite(high) {
		high = in.OptionClose
	}
	if l.CheckTP1(id, high) {
		res.TP1Hit = true
		if l.params.Trail == strategy.TrailLock {
			res.SLMoved = l.RaiseSL(id, l.params.LockedSL(pos.EntryPrice))
		}
	}

	pos, _ = l.Get(id)
	if pos.TP1Hit && l.params.Trail == strategy.TrailATR && finite(in.OptionATR) {
		if l.RaiseSL(id, l.params.TrailingSL(pos.Highest, in.OptionATR)) {
			res.SLMoved = true
		}
		pos, _ = l.Get(id)
	}
	res.SL = pos.SL
	res.Position = pos

	if reason, price, ok := EvaluateExit(l.params, pos, in); ok {
		cp := l.Close(id, price, reason, in.At)
		res.Closed = &cp
	}
	return res
}

// PriceFor picks the option price matching side from CE/PE values.
func PriceFor(side model.Side, ce, pe float64) float64 {
	if side == model.SidePE {
		return pe
	}
	return ce
}
