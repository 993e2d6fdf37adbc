// Package tradelog writes the session's human-readable records: signals and
// trades as CSV, lifecycle events as JSON, and a daily summary report.
package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"niftybot/internal/execution"
	"niftybot/internal/markethours"
	"niftybot/internal/portfolio"
)

const timeLayout = "2006-01-02 15:04:05"

type signalRow struct {
	Timestamp  string `csv:"timestamp"`
	Side       string `csv:"side"`
	NiftyClose string `csv:"nifty_close"`
	EMA21      string `csv:"ema21"`
	MACDHist   string `csv:"macd_hist"`
	Choppiness string `csv:"choppiness"`
	OptionLTP  string `csv:"option_ltp"`
	Strike     string `csv:"strike"`
}

type tradeRow struct {
	OrderID    string `csv:"order_id"`
	SignalTime string `csv:"signal_time"`
	EntryTime  string `csv:"entry_time"`
	ExitTime   string `csv:"exit_time"`
	Side       string `csv:"side"`
	Strike     string `csv:"strike"`
	EntryPrice string `csv:"entry_price"`
	ExitPrice  string `csv:"exit_price"`
	Quantity   string `csv:"quantity"`
	InitialSL  string `csv:"initial_sl"`
	SL         string `csv:"sl"`
	TP1        string `csv:"tp1"`
	TP1Hit     string `csv:"tp1_hit"`
	ExitReason string `csv:"exit_reason"`
	PnLPoints  string `csv:"pnl_points"`
	PnLINR     string `csv:"pnl_inr"`
	Status     string `csv:"status"`
}

// Logger buffers the session's records and writes them out on SaveAll.
// It implements execution.Recorder.
type Logger struct {
	dir   string
	day   string
	title string

	mu      sync.Mutex
	signals []signalRow
	trades  []tradeRow
	events  []execution.Event
	now     func() time.Time
}

// New creates dir if needed. Files are suffixed with day's date (YYYYMMDD).
func New(dir string, day time.Time) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tradelog dir: %w", err)
	}
	return &Logger{
		dir:   dir,
		day:   day.In(markethours.IST).Format("20060102"),
		title: "NIFTY PAPER TRADER - DAILY SUMMARY",
		now:   time.Now,
	}, nil
}

// SetTitle replaces the summary report heading.
func (l *Logger) SetTitle(title string) { l.title = title }

func (l *Logger) path(kind, ext string) string {
	return filepath.Join(l.dir, kind+"_"+l.day+"."+ext)
}

// SignalsFile, TradesFile, EventsFile and SummaryFile return output paths.
func (l *Logger) SignalsFile() string { return l.path("signals", "csv") }
func (l *Logger) TradesFile() string  { return l.path("trades", "csv") }
func (l *Logger) EventsFile() string  { return l.path("events", "json") }
func (l *Logger) SummaryFile() string { return l.path("summary", "txt") }

// RecordSignal implements execution.Recorder.
func (l *Logger) RecordSignal(_ context.Context, s execution.SignalRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, signalRow{
		Timestamp:  ts(s.Time),
		Side:       string(s.Side),
		NiftyClose: num(s.NiftyClose),
		EMA21:      num(s.EMA),
		MACDHist:   num(s.MACDHist),
		Choppiness: num(s.Chop),
		OptionLTP:  num(s.OptionLTP),
		Strike:     strconv.Itoa(s.Strike),
	})
	log.Printf("[tradelog] SIGNAL %s @ %s strike=%d ltp=%.2f nifty=%.2f",
		s.Side, s.Time.In(markethours.IST).Format("15:04:05"), s.Strike, s.OptionLTP, s.NiftyClose)
	return nil
}

// RecordOpen implements execution.Recorder. Entries only hit the log;
// the trades file holds completed round trips.
func (l *Logger) RecordOpen(_ context.Context, p execution.Position) error {
	log.Printf("[tradelog] ENTRY %s %d id=%s price=%.2f qty=%d",
		p.Side, p.Strike, p.OrderID, p.EntryPrice, p.Quantity)
	return nil
}

// RecordClose implements execution.Recorder.
func (l *Logger) RecordClose(_ context.Context, c execution.ClosedPosition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, tradeRow{
		OrderID:    c.OrderID,
		SignalTime: ts(c.SignalTime),
		EntryTime:  ts(c.EntryTime),
		ExitTime:   ts(c.ExitTime),
		Side:       string(c.Side),
		Strike:     strconv.Itoa(c.Strike),
		EntryPrice: num(c.EntryPrice),
		ExitPrice:  num(c.ExitPrice),
		Quantity:   strconv.Itoa(c.Quantity),
		InitialSL:  num(c.InitialSL),
		SL:         num(c.SL),
		TP1:        num(c.TP1),
		TP1Hit:     strconv.FormatBool(c.TP1Hit),
		ExitReason: c.ExitReason,
		PnLPoints:  num(c.PnLPoints),
		PnLINR:     num(c.PnLINR),
		Status:     string(c.Status),
	})
	log.Printf("[tradelog] EXIT %s %d id=%s price=%.2f reason=%q pnl=%s",
		c.Side, c.Strike, c.OrderID, c.ExitPrice, c.ExitReason, rupees(c.PnLINR))
	return nil
}

// RecordEvent implements execution.Recorder.
func (l *Logger) RecordEvent(_ context.Context, e execution.Event) error {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

// Counts returns how many signals, trades and events are buffered.
func (l *Logger) Counts() (signals, trades, events int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.signals), len(l.trades), len(l.events)
}

// SaveAll writes every file plus the summary and returns the summary text.
// Empty logs produce no file, matching a session with nothing to report.
func (l *Logger) SaveAll(stats portfolio.Summary) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.signals) > 0 {
		if err := writeCSV(l.SignalsFile(), &l.signals); err != nil {
			return "", err
		}
		log.Printf("[tradelog] signals saved to %s", l.SignalsFile())
	}
	if len(l.trades) > 0 {
		if err := writeCSV(l.TradesFile(), &l.trades); err != nil {
			return "", err
		}
		log.Printf("[tradelog] trades saved to %s", l.TradesFile())
	}
	if len(l.events) > 0 {
		b, err := json.MarshalIndent(l.events, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode events: %w", err)
		}
		if err := os.WriteFile(l.EventsFile(), b, 0o644); err != nil {
			return "", fmt.Errorf("write events: %w", err)
		}
		log.Printf("[tradelog] events saved to %s", l.EventsFile())
	}

	summary := l.summaryLocked(stats)
	if err := os.WriteFile(l.SummaryFile(), []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	log.Printf("[tradelog] summary saved to %s", l.SummaryFile())
	return summary, nil
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := gocsv.Marshal(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(markethours.IST).Format(timeLayout)
}

// num formats a price with two decimals; undefined values are left blank.
func num(v float64) string {
	if v != v {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
