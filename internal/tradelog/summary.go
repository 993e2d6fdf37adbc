package tradelog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"niftybot/internal/markethours"
	"niftybot/internal/portfolio"
)

const rule = "======================================================================"

func (l *Logger) summaryLocked(s portfolio.Summary) string {
	now := l.now().In(markethours.IST)
	var b strings.Builder

	section := func(title string) {
		fmt.Fprintf(&b, "\n%s\n%s\n%s\n", rule, title, rule)
	}

	fmt.Fprintf(&b, "%s\n%s\n%s\n", rule, l.title, rule)
	fmt.Fprintf(&b, "Date: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Report Generated: %s\n", now.Format("15:04:05"))

	section("TRADING STATISTICS")
	fmt.Fprintf(&b, "Total Signals Generated:  %d\n", len(l.signals))
	fmt.Fprintf(&b, "Total Trades Executed:    %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "Open Positions:           %d\n\n", s.OpenPositions)
	fmt.Fprintf(&b, "Winning Trades:           %d\n", s.Winners)
	fmt.Fprintf(&b, "Losing Trades:            %d\n", s.Losers)
	fmt.Fprintf(&b, "Win Rate:                 %.1f%%\n", s.WinRate)

	section("P&L SUMMARY")
	fmt.Fprintf(&b, "Realized P&L:             %s\n", rupees(s.Realized))
	fmt.Fprintf(&b, "Unrealized P&L:           %s\n", rupees(s.Unrealized))
	fmt.Fprintf(&b, "Total P&L:                %s\n", rupees(s.Total))

	section("FILES GENERATED")
	fmt.Fprintf(&b, "Signals Log:  %s\n", l.SignalsFile())
	fmt.Fprintf(&b, "Trades Log:   %s\n", l.TradesFile())
	fmt.Fprintf(&b, "Events Log:   %s\n", l.EventsFile())
	fmt.Fprintf(&b, "Summary:      %s\n", l.SummaryFile())
	fmt.Fprintf(&b, "\n%s\n", rule)
	return b.String()
}

// rupees formats v with thousands separators, e.g. ₹12,345.60.
func rupees(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var g strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			g.WriteByte(',')
		}
		g.WriteRune(r)
	}
	out := "₹" + g.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
