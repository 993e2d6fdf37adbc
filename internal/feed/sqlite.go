package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// History is the candle store a replay reads from.
type History interface {
	ReadRange(ctx context.Context, from, to time.Time) ([]model.Candle, error)
	TradingDays(ctx context.Context) ([]string, error)
}

// ReplayConfig selects what a replay plays back.
type ReplayConfig struct {
	// Days replays the last N stored trading days when From is zero (default 1).
	Days int
	// From/To bound the replay explicitly; To zero means open ended.
	From, To time.Time
	// WarmupDays of stored history before the first replay day seed the buffers.
	WarmupDays int
	// Speed: 1.0 = real time, 10 = 10x, 0 = as fast as possible.
	Speed float64
}

// SQLiteSource replays stored 5-minute candles.
type SQLiteSource struct {
	hist History
	cfg  ReplayConfig

	from, to, warmFrom time.Time
	resolved           bool
}

// NewSQLiteSource creates a replay source over hist.
func NewSQLiteSource(hist History, cfg ReplayConfig) *SQLiteSource {
	if cfg.Days <= 0 {
		cfg.Days = 1
	}
	return &SQLiteSource{hist: hist, cfg: cfg}
}

// Name implements Source.
func (s *SQLiteSource) Name() string { return "sqlite-replay" }

// window resolves the replay and warm-up bounds from the stored trading days.
func (s *SQLiteSource) window(ctx context.Context) error {
	if s.resolved {
		return nil
	}
	days, err := s.hist.TradingDays(ctx)
	if err != nil {
		return fmt.Errorf("replay trading days: %w", err)
	}
	if len(days) == 0 {
		return ErrNoCandles
	}

	s.from, s.to = s.cfg.From, s.cfg.To
	first := len(days)
	if s.from.IsZero() {
		first = len(days) - s.cfg.Days
		if first < 0 {
			first = 0
		}
		if s.from, err = parseDay(days[first]); err != nil {
			return err
		}
	} else {
		for i, d := range days {
			if d >= markethours.TradingDay(s.from) {
				first = i
				break
			}
		}
	}

	s.warmFrom = s.from
	if s.cfg.WarmupDays > 0 && first > 0 {
		w := first - s.cfg.WarmupDays
		if w < 0 {
			w = 0
		}
		if s.warmFrom, err = parseDay(days[w]); err != nil {
			return err
		}
	}
	s.resolved = true
	return nil
}

// Warmup implements Source.
func (s *SQLiteSource) Warmup(ctx context.Context) ([]model.Batch, error) {
	if err := s.window(ctx); err != nil {
		return nil, err
	}
	if !s.warmFrom.Before(s.from) {
		return nil, nil
	}
	candles, err := s.hist.ReadRange(ctx, s.warmFrom, s.from)
	if err != nil {
		return nil, fmt.Errorf("replay warmup: %w", err)
	}
	batches := Sequence(candles)
	log.Printf("[replay] warmup %d candles -> %d batches (%s .. %s)",
		len(candles), len(batches), markethours.TradingDay(s.warmFrom), markethours.TradingDay(s.from))
	return batches, nil
}

// Run implements Source.
func (s *SQLiteSource) Run(ctx context.Context, out chan<- model.Event) error {
	if err := s.window(ctx); err != nil {
		return err
	}
	candles, err := s.hist.ReadRange(ctx, s.from, s.to)
	if err != nil {
		return fmt.Errorf("replay read: %w", err)
	}
	if len(candles) == 0 {
		log.Println("[replay] no candles found in SQLite")
		return ErrNoCandles
	}

	batches := Sequence(candles)
	log.Printf("[replay] loaded %d candles -> %d batches, speed=%.1fx", len(candles), len(batches), s.cfg.Speed)
	return play(ctx, batches, s.cfg.Speed, out)
}

// play emits batches, sleeping the scaled gap between them.
func play(ctx context.Context, batches []model.Batch, speed float64, out chan<- model.Event) error {
	var prev time.Time
	emitted := 0
	for _, b := range batches {
		if speed > 0 && !prev.IsZero() {
			if gap := b.TS.Sub(prev); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > 5*time.Second {
					scaled = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					log.Printf("[replay] cancelled after %d batches", emitted)
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prev = b.TS

		if err := send(ctx, out, model.CandleEvent(b)); err != nil {
			log.Printf("[replay] cancelled after %d batches", emitted)
			return err
		}
		emitted++
	}
	log.Printf("[replay] completed: %d batches replayed", emitted)
	return nil
}

func parseDay(d string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", d, markethours.IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("replay day %q: %w", d, err)
	}
	return t, nil
}
