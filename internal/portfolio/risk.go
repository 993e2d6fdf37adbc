package portfolio

import (
	"log"
	"sync"
)

// RiskLimits are the day-level limits checked before a new signal is queued.
// Zero disables a limit.
type RiskLimits struct {
	MaxDailyLoss    float64 `json:"max_daily_loss" mapstructure:"max_daily_loss"` // INR, positive number
	MaxTradesPerDay int     `json:"max_trades_per_day" mapstructure:"max_trades_per_day"`
}

// RiskGuard blocks new entries once a daily limit is reached. Open positions
// are never touched; they run to their own exits.
type RiskGuard struct {
	mu      sync.Mutex
	limits  RiskLimits
	tracker *DailyTracker
	tripped string
}

// NewRiskGuard creates a guard reading P&L from tracker.
func NewRiskGuard(limits RiskLimits, tracker *DailyTracker) *RiskGuard {
	return &RiskGuard{limits: limits, tracker: tracker}
}

// CanTrade reports whether another entry is allowed today, with the reason
// when it is not.
func (g *RiskGuard) CanTrade() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reason := ""
	switch {
	case g.limits.MaxDailyLoss > 0 && g.tracker.Realized() <= -g.limits.MaxDailyLoss:
		reason = "max daily loss reached"
	case g.limits.MaxTradesPerDay > 0 && g.tracker.TradesToday() >= g.limits.MaxTradesPerDay:
		reason = "max trades per day reached"
	}

	if reason != g.tripped {
		if reason != "" {
			log.Printf("[risk] entries blocked: %s (realized=%.2f trades=%d)",
				reason, g.tracker.Realized(), g.tracker.TradesToday())
		} else {
			log.Printf("[risk] entries re-enabled")
		}
		g.tripped = reason
	}
	return reason == "", reason
}

// Limits returns the configured limits.
func (g *RiskGuard) Limits() RiskLimits { return g.limits }

// Status returns the guard state for the dashboard.
func (g *RiskGuard) Status() map[string]interface{} {
	ok, reason := g.CanTrade()
	return map[string]interface{}{
		"can_trade":    ok,
		"reason":       reason,
		"realized_pnl": g.tracker.Realized(),
		"trades_today": g.tracker.TradesToday(),
		"limits":       g.limits,
	}
}
