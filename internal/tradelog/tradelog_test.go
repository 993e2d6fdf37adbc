package tradelog

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"niftybot/internal/execution"
	"niftybot/internal/markethours"
	"niftybot/internal/model"
	"niftybot/internal/portfolio"
)

func TestRupees(t *testing.T) {
	tests := map[float64]string{
		0:          "₹0.00",
		975:        "₹975.00",
		1237.5:     "₹1,237.50",
		-600:       "-₹600.00",
		1234567.89: "₹1,234,567.89",
	}
	for in, want := range tests {
		if got := rupees(in); got != want {
			t.Errorf("rupees(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveAllWritesFiles(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 4, 9, 0, 0, 0, markethours.IST)
	l, err := New(dir, day)
	if err != nil {
		t.Fatal(err)
	}
	l.now = func() time.Time { return day.Add(6*time.Hour + 30*time.Minute) }
	ctx := context.Background()

	sigAt := time.Date(2026, 3, 4, 10, 0, 0, 0, markethours.IST)
	l.RecordSignal(ctx, execution.SignalRecord{
		Time: sigAt, Side: model.SideCE, NiftyClose: 22105.4, EMA: 22090.12, MACDHist: 1.5, Chop: 48.2, OptionLTP: 120, Strike: 22100,
	})
	l.RecordClose(ctx, execution.ClosedPosition{
		Position: execution.Position{
			OrderID: "abcd1234", Side: model.SideCE, Strike: 22100, EntryPrice: 120.5, Quantity: 75,
			InitialSL: 112.5, SL: 133.5, TP1: 130.5, TP1Hit: true,
			SignalTime: sigAt, EntryTime: sigAt.Add(5 * time.Minute), Status: execution.StatusClosed,
		},
		ExitPrice: 137, ExitTime: sigAt.Add(time.Hour), ExitReason: execution.ReasonTrend,
		PnLPoints: 16.5, PnLINR: 1237.5,
	})
	l.RecordEvent(ctx, execution.Event{Type: "TP1_HIT", Message: "TP1 hit", Data: map[string]interface{}{"sl": 133.5}})

	summary, err := l.SaveAll(portfolio.Summarize([]float64{1237.5}, 0, 0))
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	trades := readFile(t, l.TradesFile())
	header := "order_id,signal_time,entry_time,exit_time,side,strike,entry_price,exit_price,quantity,initial_sl,sl,tp1,tp1_hit,exit_reason,pnl_points,pnl_inr,status"
	if !strings.HasPrefix(trades, header+"\n") {
		t.Errorf("trades header:\n%s", trades)
	}
	if !strings.Contains(trades, "abcd1234,2026-03-04 10:00:00,2026-03-04 10:05:00,2026-03-04 11:00:00,BUY_CE,22100,120.50,137.00,75,112.50,133.50,130.50,true,MACD/EMA Exit,16.50,1237.50,CLOSED") {
		t.Errorf("trade row:\n%s", trades)
	}

	signals := readFile(t, l.SignalsFile())
	if !strings.HasPrefix(signals, "timestamp,side,nifty_close,ema21,macd_hist,choppiness,option_ltp,strike\n") {
		t.Errorf("signals header:\n%s", signals)
	}
	if !strings.Contains(readFile(t, l.EventsFile()), `"event_type": "TP1_HIT"`) {
		t.Error("events file missing TP1_HIT")
	}

	for _, want := range []string{"Total Signals Generated:  1", "Win Rate:                 100.0%", "Realized P&L:             ₹1,237.50", "Date: 2026-03-04"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if !strings.HasSuffix(l.SummaryFile(), "summary_20260304.txt") {
		t.Errorf("summary path = %s", l.SummaryFile())
	}
}

func TestSaveAllEmptySessionOnlyWritesSummary(t *testing.T) {
	l, err := New(t.TempDir(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.SaveAll(portfolio.Summary{}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(l.TradesFile()); !os.IsNotExist(err) {
		t.Errorf("trades file should not exist, stat err = %v", err)
	}
	if _, err := os.Stat(l.SummaryFile()); err != nil {
		t.Errorf("summary missing: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
