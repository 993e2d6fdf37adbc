// Package portfolio aggregates closed paper trades into daily statistics and
// enforces the day-level risk limits that sit above the single-position rules.
package portfolio

import (
	"github.com/shopspring/decimal"
)

// Summary is the day's trading statistics. Money values are INR.
type Summary struct {
	TotalTrades   int     `json:"total_trades"`
	Winners       int     `json:"winners"`
	Losers        int     `json:"losers"`
	WinRate       float64 `json:"win_rate"` // percent, one decimal
	Realized      float64 `json:"realized_pnl"`
	Unrealized    float64 `json:"unrealized_pnl"`
	Total         float64 `json:"total_pnl"`
	OpenPositions int     `json:"open_positions"`
}

// Summarize builds a Summary from per-trade INR results. A trade with zero
// P&L counts as neither winner nor loser.
func Summarize(pnls []float64, unrealized float64, open int) Summary {
	s := Summary{TotalTrades: len(pnls), OpenPositions: open}

	realized := decimal.Zero
	for _, v := range pnls {
		switch {
		case v > 0:
			s.Winners++
		case v < 0:
			s.Losers++
		}
		realized = realized.Add(decimal.NewFromFloat(v))
	}
	if s.TotalTrades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Winners)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(s.TotalTrades))).
			Round(1).InexactFloat64()
	}

	u := decimal.NewFromFloat(unrealized).Round(2)
	s.Realized = realized.Round(2).InexactFloat64()
	s.Unrealized = u.InexactFloat64()
	s.Total = realized.Add(u).Round(2).InexactFloat64()
	return s
}
