package markethours

import (
	"testing"
	"time"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func TestClock_ParseAndString(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c != NewClock(9, 30) {
		t.Fatalf("expected 570 minutes, got %d", int(c))
	}
	if c.String() != "09:30" {
		t.Fatalf("expected 09:30, got %s", c)
	}
	if _, err := ParseClock("9h30"); err == nil {
		t.Fatal("expected error for malformed clock")
	}
}

func TestClockOf_ConvertsToIST(t *testing.T) {
	// 04:00 UTC is 09:30 IST
	utc := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	if got := ClockOf(utc); got != NewClock(9, 30) {
		t.Fatalf("expected 09:30, got %s", got)
	}
}

func TestSession_IsOpen(t *testing.T) {
	cases := []struct {
		name string
		s    Session
		t    time.Time
		want bool
	}{
		{"nse before open", NSE, ist(2026, 3, 2, 9, 14), false},
		{"nse at open", NSE, ist(2026, 3, 2, 9, 15), true},
		{"nse at close", NSE, ist(2026, 3, 2, 15, 30), false},
		{"nse saturday", NSE, ist(2026, 3, 7, 11, 0), false},
		{"nse holiday", NSE, ist(2026, 8, 15, 11, 0), false},
		{"mcx evening", MCX, ist(2026, 3, 2, 21, 0), true},
	}
	for _, tc := range cases {
		if got := tc.s.IsOpen(tc.t); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	fri := ist(2026, 3, 6, 16, 0)
	next := NSE.NextOpen(fri)
	want := ist(2026, 3, 9, 9, 15)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestCandleStart(t *testing.T) {
	got := CandleStart(ist(2026, 3, 2, 10, 7))
	if !got.Equal(ist(2026, 3, 2, 10, 5)) {
		t.Fatalf("expected 10:05, got %v", got)
	}
	if close := NextCandleClose(ist(2026, 3, 2, 10, 7)); !close.Equal(ist(2026, 3, 2, 10, 10)) {
		t.Fatalf("expected 10:10, got %v", close)
	}
}

func TestPreviousTradingDays(t *testing.T) {
	// Monday → previous Friday and Thursday
	days := PreviousTradingDays(ist(2026, 3, 9, 10, 0), 2)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if TradingDay(days[0]) != "2026-03-06" || TradingDay(days[1]) != "2026-03-05" {
		t.Fatalf("unexpected days: %v", days)
	}
}

func TestSameTradingDay(t *testing.T) {
	if !SameTradingDay(ist(2026, 3, 2, 9, 15), ist(2026, 3, 2, 15, 25)) {
		t.Fatal("expected same day")
	}
	if SameTradingDay(ist(2026, 3, 2, 15, 25), ist(2026, 3, 3, 9, 15)) {
		t.Fatal("expected different days")
	}
}
