package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftybot/internal/indicator"
	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 2, hh, mm, 0, 0, markethours.IST)
}

// rows builds a three-row history ending at ts with the given vortex pairs.
func rows(ts time.Time, vi [3][2]float64, close, ema float64) []indicator.Row {
	out := make([]indicator.Row, 3)
	for i := range out {
		out[i] = indicator.Row{
			TS:       ts.Add(time.Duration(i-2) * markethours.CandleInterval),
			Close:    close,
			EMA:      ema,
			MACDHist: 1,
			VIPlus:   vi[i][0],
			VIMinus:  vi[i][1],
			Chop:     40,
		}
	}
	return out
}

func TestEvaluate_BullishWideningGap(t *testing.T) {
	e := NewEvaluator(V30())
	h := rows(at(10, 0), [3][2]float64{{1.0, 1.0}, {1.05, 0.95}, {1.10, 0.90}}, 22100, 22000)
	assert.Equal(t, model.SideCE, e.Evaluate(h, 2))
}

func TestEvaluate_BearishWideningGap(t *testing.T) {
	e := NewEvaluator(V30())
	h := rows(at(11, 0), [3][2]float64{{1.0, 1.0}, {0.95, 1.05}, {0.90, 1.12}}, 21900, 22000)
	assert.Equal(t, model.SidePE, e.Evaluate(h, 2))
}

func TestEvaluate_Rejections(t *testing.T) {
	e := NewEvaluator(V30())
	widening := [3][2]float64{{1.0, 1.0}, {1.05, 0.95}, {1.10, 0.90}}

	cases := []struct {
		name string
		h    []indicator.Row
		idx  int
	}{
		{"index below 2", rows(at(10, 0), widening, 22100, 22000), 1},
		{"index past end", rows(at(10, 0), widening, 22100, 22000), 3},
		{"before entry window", rows(at(9, 25), widening, 22100, 22000), 2},
		{"after entry window", rows(at(15, 15), widening, 22100, 22000), 2},
		{"close below ema", rows(at(10, 0), widening, 21900, 22000), 2},
		{"gap narrowing", rows(at(10, 0), [3][2]float64{{1.0, 1.0}, {1.20, 0.80}, {1.10, 0.90}}, 22100, 22000), 2},
		{"gap flat", rows(at(10, 0), [3][2]float64{{1.0, 1.0}, {1.10, 0.90}, {1.10, 0.90}}, 22100, 22000), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, model.SideNone, e.Evaluate(tc.h, tc.idx))
		})
	}
}

func TestEvaluate_WindowBoundsAreInclusive(t *testing.T) {
	e := NewEvaluator(V30())
	widening := [3][2]float64{{1.0, 1.0}, {1.05, 0.95}, {1.10, 0.90}}
	assert.Equal(t, model.SideCE, e.Evaluate(rows(at(9, 30), widening, 22100, 22000), 2))
	assert.Equal(t, model.SideCE, e.Evaluate(rows(at(15, 10), widening, 22100, 22000), 2))
}

func TestEvaluate_NaNNeverSignals(t *testing.T) {
	e := NewEvaluator(V30())
	h := rows(at(10, 0), [3][2]float64{{1.0, 1.0}, {1.05, 0.95}, {1.10, 0.90}}, 22100, 22000)
	h[2].EMA = math.NaN()
	assert.Equal(t, model.SideNone, e.Evaluate(h, 2))
}

func TestEvaluate_ChopGate(t *testing.T) {
	widening := [3][2]float64{{1.0, 1.0}, {1.05, 0.95}, {1.10, 0.90}}

	p := V30()
	h := rows(at(10, 0), widening, 22100, 22000)
	h[2].Chop = 60
	assert.Equal(t, model.SideCE, NewEvaluator(p).Evaluate(h, 2), "gate off ignores chop")

	p.ChopGate = true
	assert.Equal(t, model.SideNone, NewEvaluator(p).Evaluate(h, 2), "chop above threshold blocks")

	h[2].Chop = 57
	assert.Equal(t, model.SideCE, NewEvaluator(p).Evaluate(h, 2), "strict gate lets threshold through")

	p.ChopInclusive = true
	assert.Equal(t, model.SideNone, NewEvaluator(p).Evaluate(h, 2), "inclusive gate blocks at threshold")
}

func TestEntryLevels(t *testing.T) {
	p := V30()

	lv, err := p.EntryLevels(model.SideCE, 120.5, 4.0)
	require.NoError(t, err)
	assert.Equal(t, 112.5, lv.SL)
	assert.Equal(t, 130.5, lv.TP1)
	assert.Equal(t, 8.0, lv.ATRBasedSL)

	// ATR large enough that the cap applies: 120.5 - 26.67
	lv, err = p.EntryLevels(model.SidePE, 120.5, 20)
	require.NoError(t, err)
	assert.Equal(t, 93.83, lv.SL)
}

func TestEntryLevels_InvalidSide(t *testing.T) {
	_, err := V30().EntryLevels(model.Side("SELL"), 100, 5)
	require.ErrorIs(t, err, ErrInvalidSide)
}

func TestExitPredicates(t *testing.T) {
	p := V30()

	assert.True(t, p.SLHit(112.5, 112.5))
	assert.False(t, p.SLHit(112.51, 112.5))

	assert.True(t, p.TrendReversed(model.SideCE, 21990, 22000, 1))
	assert.True(t, p.TrendReversed(model.SideCE, 22100, 22000, -0.1))
	assert.False(t, p.TrendReversed(model.SideCE, 22100, 22000, 0.1))
	assert.True(t, p.TrendReversed(model.SidePE, 22010, 22000, -1))
	assert.False(t, p.TrendReversed(model.SidePE, 21900, 22000, -1))

	assert.False(t, p.PastEOD(at(15, 20)))
	assert.True(t, p.PastEOD(at(15, 25)))

	assert.Equal(t, 133.5, p.LockedSL(120.5))
	assert.Equal(t, 138.0, p.TrailingSL(140, 4))
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		p, err := ParamsByName(name)
		require.NoError(t, err, name)
		require.NoError(t, p.Validate(), name)
	}

	p, err := ParamsByName("v30_phase2")
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.MaxSLPoints)
	assert.Equal(t, 87.5, p.CostPerTrade)
	assert.True(t, p.ChopGate)

	_, err = ParamsByName("V99")
	assert.Error(t, err)
}

func TestParseTrailPolicy(t *testing.T) {
	got, err := ParseTrailPolicy(" ATR ")
	require.NoError(t, err)
	assert.Equal(t, TrailATR, got)

	_, err = ParseTrailPolicy("breakeven")
	assert.Error(t, err)
}
