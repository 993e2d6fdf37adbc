package orchestrator

import (
	"fmt"
	"time"

	"niftybot/internal/execution"
	"niftybot/internal/notification"
	"niftybot/internal/portfolio"
)

// Alerter accepts alerts without blocking; notification.Dispatcher is one.
type Alerter interface {
	Notify(a notification.Alert)
}

func entryAlert(p execution.Position) notification.Alert {
	return notification.Alert{
		Level: notification.AlertInfo,
		Kind:  "ENTRY",
		Title: fmt.Sprintf("%s %d entered", p.Side, p.Strike),
		Message: fmt.Sprintf("Entry %.2f | SL %.2f | TP1 %.2f | Qty %d\nSignal %s, filled %s",
			p.EntryPrice, p.SL, p.TP1, p.Quantity,
			p.SignalTime.Format("15:04"), p.EntryTime.Format("15:04")),
		Time:  p.EntryTime,
		Trade: tradeOf(p),
	}
}

func tp1Alert(p execution.Position, at time.Time) notification.Alert {
	return notification.Alert{
		Level:   notification.AlertInfo,
		Kind:    "TP1_HIT",
		Title:   fmt.Sprintf("%s %d TP1 hit", p.Side, p.Strike),
		Message: fmt.Sprintf("TP1 %.2f reached, SL now %.2f", p.TP1, p.SL),
		Time:    at,
		Trade:   tradeOf(p),
	}
}

func exitAlert(c execution.ClosedPosition) notification.Alert {
	level := notification.AlertInfo
	if c.ExitReason == execution.ReasonForce {
		level = notification.AlertWarning
	}
	return notification.Alert{
		Level: level,
		Kind:  "EXIT",
		Title: fmt.Sprintf("%s %d closed: %s", c.Side, c.Strike, c.ExitReason),
		Message: fmt.Sprintf("Entry %.2f -> Exit %.2f\nP&L %+.2f pts / %+.2f INR",
			c.EntryPrice, c.ExitPrice, c.PnLPoints, c.PnLINR),
		Time:  c.ExitTime,
		Trade: closedTradeOf(c),
	}
}

func tradeOf(p execution.Position) *notification.Trade {
	return &notification.Trade{
		OrderID:  p.OrderID,
		Side:     string(p.Side),
		Strike:   p.Strike,
		Symbol:   p.Symbol,
		Quantity: p.Quantity,
		Entry:    p.EntryPrice,
		SL:       p.SL,
		TP1:      p.TP1,
	}
}

func closedTradeOf(c execution.ClosedPosition) *notification.Trade {
	t := tradeOf(c.Position)
	t.Exit = c.ExitPrice
	t.Reason = c.ExitReason
	t.PnLPoints = c.PnLPoints
	t.PnLINR = c.PnLINR
	return t
}

func summaryAlert(s portfolio.Summary, at time.Time) notification.Alert {
	return notification.Alert{
		Level: notification.AlertInfo,
		Kind:  "SUMMARY",
		Title: "Session summary",
		Message: fmt.Sprintf("Trades %d (W %d / L %d, %.1f%%)\nRealized %.2f INR",
			s.TotalTrades, s.Winners, s.Losers, s.WinRate, s.Realized),
		Time: at,
	}
}
