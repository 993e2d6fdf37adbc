package feed

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// csvCandle is one row of the NIFTY or options CSV. Options rows carry
// instrument_type (CE/PE) and strike; NIFTY rows leave them empty.
type csvCandle struct {
	Datetime       string `csv:"datetime"`
	Open           string `csv:"open"`
	High           string `csv:"high"`
	Low            string `csv:"low"`
	Close          string `csv:"close"`
	Volume         string `csv:"volume"`
	InstrumentType string `csv:"instrument_type"`
	Strike         string `csv:"strike"`
	Symbol         string `csv:"symbol"`
}

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, markethours.IST); err == nil {
			return t.In(markethours.IST), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}

func (r csvCandle) candle(tag model.Tag) (model.Candle, error) {
	ts, err := parseCSVTime(r.Datetime)
	if err != nil {
		return model.Candle{}, err
	}
	c := model.Candle{Tag: tag, Symbol: r.Symbol, TS: ts}
	fields := []struct {
		dst *float64
		raw string
	}{{&c.Open, r.Open}, {&c.High, r.High}, {&c.Low, r.Low}, {&c.Close, r.Close}}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(strings.TrimSpace(f.raw), 64); err != nil {
			return model.Candle{}, fmt.Errorf("%s price %q: %w", ts.Format("2006-01-02 15:04"), f.raw, err)
		}
	}
	if v := strings.TrimSpace(r.Volume); v != "" {
		c.Volume, _ = strconv.ParseFloat(v, 64)
	}
	if k := strings.TrimSpace(r.Strike); k != "" {
		f, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("strike %q: %w", k, err)
		}
		c.Strike = int(f)
	}
	return c, nil
}

// LoadCSV reads a NIFTY CSV and an options CSV into tagged candles.
// Options rows whose instrument_type is not CE or PE are skipped.
func LoadCSV(niftyPath, optionsPath string) ([]model.Candle, error) {
	nifty, err := readCSVFile(niftyPath)
	if err != nil {
		return nil, err
	}
	out := make([]model.Candle, 0, len(nifty)*3)
	for i, r := range nifty {
		c, err := r.candle(model.TagNifty)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", niftyPath, i+2, err)
		}
		out = append(out, c)
	}

	if optionsPath == "" {
		return out, nil
	}
	opts, err := readCSVFile(optionsPath)
	if err != nil {
		return nil, err
	}
	for i, r := range opts {
		tag := model.Tag(strings.ToUpper(strings.TrimSpace(r.InstrumentType)))
		if tag != model.TagCE && tag != model.TagPE {
			continue
		}
		c, err := r.candle(tag)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", optionsPath, i+2, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func readCSVFile(path string) ([]csvCandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	var rows []csvCandle
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	return rows, nil
}

// memHistory serves candles held in memory through the History interface.
type memHistory struct {
	candles []model.Candle
}

func newMemHistory(candles []model.Candle) *memHistory {
	sorted := make([]model.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })
	return &memHistory{candles: sorted}
}

func (m *memHistory) ReadRange(_ context.Context, from, to time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range m.candles {
		if c.TS.Before(from) || (!to.IsZero() && !c.TS.Before(to)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memHistory) TradingDays(context.Context) ([]string, error) {
	var days []string
	for _, c := range m.candles {
		if c.Tag != model.TagNifty {
			continue
		}
		d := markethours.TradingDay(c.TS)
		if len(days) == 0 || days[len(days)-1] != d {
			days = append(days, d)
		}
	}
	return days, nil
}

// CSVSource replays candles loaded from CSV files (mock mode).
type CSVSource struct {
	*SQLiteSource
	niftyPath string
}

// NewCSVSource loads both files up front.
func NewCSVSource(niftyPath, optionsPath string, cfg ReplayConfig) (*CSVSource, error) {
	candles, err := LoadCSV(niftyPath, optionsPath)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", niftyPath, ErrNoCandles)
	}
	log.Printf("[csv] loaded %d candles from %s / %s", len(candles), niftyPath, optionsPath)
	return &CSVSource{SQLiteSource: NewSQLiteSource(newMemHistory(candles), cfg), niftyPath: niftyPath}, nil
}

// Name implements Source.
func (s *CSVSource) Name() string { return "csv-replay:" + filepath.Base(s.niftyPath) }
