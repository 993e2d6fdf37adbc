// Package strategy holds the V30 family of entry/exit rules.
//
// There is one rule set. V27, V28, V30 and V30_PHASE2 (V30 with per-trade
// costs) are named parameter presets rather than separate implementations.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"niftybot/internal/indicator"
	"niftybot/internal/markethours"
)

// TrailPolicy selects how the stop moves once TP1 has been hit.
type TrailPolicy string

const (
	// TrailLock moves SL to entry + LockPoints the moment TP1 is hit.
	TrailLock TrailPolicy = "lock"
	// TrailATR trails SL at highest price seen minus TrailATRMultiplier × option ATR.
	TrailATR TrailPolicy = "atr"
)

// ParseTrailPolicy accepts "lock" or "atr" (case-insensitive).
func ParseTrailPolicy(s string) (TrailPolicy, error) {
	switch TrailPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case TrailLock:
		return TrailLock, nil
	case TrailATR:
		return TrailATR, nil
	}
	return "", fmt.Errorf("strategy: unknown trail policy %q", s)
}

// Params is the complete, immutable parameterisation of the strategy.
type Params struct {
	Name string `json:"name"`

	EMAPeriod    int `json:"ema_period"`
	VortexPeriod int `json:"vi_period"`

	SLMultiplier       float64     `json:"sl_multiplier"`
	TP1Points          float64     `json:"tp1_points"`
	MaxSLPoints        float64     `json:"max_sl_points"`
	TrailATRMultiplier float64     `json:"trail_atr_multiplier"`
	LockPoints         float64     `json:"lock_points"`
	Trail              TrailPolicy `json:"trail_policy"`

	ChopGate      bool    `json:"chop_gate"`
	ChopThreshold float64 `json:"chop_threshold"`
	ChopInclusive bool    `json:"chop_inclusive"` // block at chop >= threshold instead of >

	EntryStart markethours.Clock `json:"entry_start"`
	EntryEnd   markethours.Clock `json:"entry_end"`
	EODExit    markethours.Clock `json:"eod_exit"`

	LotSize      int     `json:"lot_size"`
	Slippage     float64 `json:"slippage"`       // points added to the T+1 open
	CostPerTrade float64 `json:"cost_per_trade"` // INR deducted from every closed trade
}

// V30 is the default parameter set. The stop is 2xATR capped at 26.67
// points and TP1 sits 10 points above entry.
func V30() Params {
	return Params{
		Name:               "V30",
		EMAPeriod:          21,
		VortexPeriod:       21,
		SLMultiplier:       2.0,
		TP1Points:          10,
		MaxSLPoints:        26.67, // ₹2000 / 75
		TrailATRMultiplier: 0.5,
		LockPoints:         13,
		Trail:              TrailLock,
		ChopThreshold:      57,
		EntryStart:         markethours.NewClock(9, 30),
		EntryEnd:           markethours.NewClock(15, 10),
		EODExit:            markethours.NewClock(15, 25),
		LotSize:            75,
		Slippage:           0.5,
	}
}

var presets = map[string]func() Params{
	"V30": V30,
	"V30_PHASE2": func() Params {
		p := V30()
		p.Name = "V30_PHASE2"
		p.MaxSLPoints = 25
		p.ChopGate = true
		p.CostPerTrade = 87.50
		return p
	},
	"V28": func() Params {
		p := V30()
		p.Name = "V28"
		p.SLMultiplier = 1.2
		p.ChopGate = true
		p.ChopThreshold = 65
		p.ChopInclusive = true
		return p
	},
	"V27": func() Params {
		p := V30()
		p.Name = "V27"
		p.SLMultiplier = 1.5
		p.TrailATRMultiplier = 0.4
		p.ChopGate = true
		p.ChopInclusive = true
		p.EntryEnd = markethours.NewClock(15, 15)
		return p
	},
}

// ParamsByName returns a copy of the named preset.
func ParamsByName(name string) (Params, error) {
	fn, ok := presets[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Params{}, fmt.Errorf("strategy: unknown preset %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	return fn(), nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate rejects parameter sets the engine cannot run with.
func (p Params) Validate() error {
	switch {
	case p.EMAPeriod <= 0 || p.VortexPeriod <= 0:
		return fmt.Errorf("strategy %s: periods must be positive", p.Name)
	case p.SLMultiplier <= 0 || p.MaxSLPoints <= 0:
		return fmt.Errorf("strategy %s: stop-loss sizing must be positive", p.Name)
	case p.TP1Points <= 0:
		return fmt.Errorf("strategy %s: tp1 points must be positive", p.Name)
	case p.LotSize <= 0:
		return fmt.Errorf("strategy %s: lot size must be positive", p.Name)
	case p.EntryStart > p.EntryEnd:
		return fmt.Errorf("strategy %s: entry window %s-%s is inverted", p.Name, p.EntryStart, p.EntryEnd)
	case p.Trail != TrailLock && p.Trail != TrailATR:
		return fmt.Errorf("strategy %s: invalid trail policy %q", p.Name, p.Trail)
	}
	return nil
}

// NiftyPeriods returns the indicator periods the primary instrument needs.
func (p Params) NiftyPeriods() indicator.Periods {
	ip := indicator.DefaultNiftyPeriods()
	ip.EMA = p.EMAPeriod
	ip.Vortex = p.VortexPeriod
	return ip
}
