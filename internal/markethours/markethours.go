package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Clock is a wall-clock time of day in IST, stored as minutes since midnight.
type Clock int

// NewClock returns the Clock for hh:mm.
func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

// ClockOf returns the IST time of day of t.
func ClockOf(t time.Time) Clock {
	ist := t.In(IST)
	return NewClock(ist.Hour(), ist.Minute())
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("markethours: invalid clock %q: %w", s, err)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

// MustClock is ParseClock that panics on malformed input. For constants only.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// On returns the instant at this clock time on t's IST calendar day.
func (c Clock) On(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), int(c)/60, int(c)%60, 0, 0, IST)
}

// MarshalText encodes the clock as "HH:MM" (used by JSON and viper decoding).
func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText decodes "HH:MM".
func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Session is an exchange's regular trading window.
type Session struct {
	Name  string
	Open  Clock
	Close Clock
}

var (
	// NSE equity and F&O session, 09:15–15:30.
	NSE = Session{Name: "NSE", Open: NewClock(9, 15), Close: NewClock(15, 30)}
	// MCX commodity session, 09:00–23:30.
	MCX = Session{Name: "MCX", Open: NewClock(9, 0), Close: NewClock(23, 30)}
)

// CandleInterval is the bar size the strategy trades on.
const CandleInterval = 5 * time.Minute

// IsOpen returns true if t falls inside the session on a trading day.
func (s Session) IsOpen(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	c := ClockOf(t)
	return c >= s.Open && c < s.Close
}

// NextOpen returns the next session open at or after t.
func (s Session) NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	todayOpen := s.Open.On(ist)
	if ist.Before(todayOpen) && IsTradingDay(ist) {
		return todayOpen
	}
	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // weekends plus clustered holidays
		if IsTradingDay(d) {
			return s.Open.On(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return s.Open.On(ist.AddDate(0, 0, 1))
}

// TodayClose returns the session close on t's calendar day.
func (s Session) TodayClose(t time.Time) time.Time { return s.Close.On(t) }

// IsMarketOpen returns true if t falls within NSE trading hours.
func IsMarketOpen(t time.Time) bool { return NSE.IsOpen(t) }

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// TradingDay returns t's IST calendar date as "2006-01-02".
func TradingDay(t time.Time) string {
	return t.In(IST).Format("2006-01-02")
}

// SameTradingDay reports whether a and b fall on the same IST date.
func SameTradingDay(a, b time.Time) bool {
	return TradingDay(a) == TradingDay(b)
}

// CandleStart truncates t to the start of its 5-minute bar in IST.
func CandleStart(t time.Time) time.Time {
	ist := t.In(IST)
	midnight := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
	return midnight.Add(ist.Sub(midnight).Truncate(CandleInterval))
}

// NextCandleClose returns the close instant of the bar containing t.
func NextCandleClose(t time.Time) time.Time {
	return CandleStart(t).Add(CandleInterval)
}

// PreviousTradingDays returns the n trading days before t (most recent first).
func PreviousTradingDays(t time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	d := t.In(IST)
	for len(days) < n {
		d = d.AddDate(0, 0, -1)
		if IsTradingDay(d) {
			days = append(days, time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IST))
		}
	}
	return days
}

// StatusString returns a human-readable NSE status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		d := NSE.TodayClose(t).Sub(t)
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(d))
	}
	next := NSE.NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("Market Closed — opens %s %s (%s)",
		ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
