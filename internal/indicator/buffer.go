package indicator

import (
	"niftybot/internal/markethours"
	"niftybot/internal/model"
	"niftybot/internal/ringbuf"
)

// BufferConfig sizes the per-instrument windows and the warm-up gates.
type BufferConfig struct {
	Capacity         int     // candles kept per tag
	MinCandles       int     // stability gate for the primary instrument
	MinSameDay       int     // NIFTY-only: candles required from the current trading day
	MinOptionCandles int     // stability gate for CE/PE legs
	Nifty            Periods // indicator periods for the primary instrument
	Option           Periods // indicator periods for option legs
}

// DefaultBufferConfig returns 500-candle windows with a 50-candle stability
// gate and a 13-candle same-day gate (~10:15 IST).
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		Capacity:         500,
		MinCandles:       50,
		MinSameDay:       13,
		MinOptionCandles: 10,
		Nifty:            DefaultNiftyPeriods(),
		Option:           DefaultOptionPeriods(),
	}
}

// Status describes one tag's window for dashboards.
type Status struct {
	Len      int  `json:"len"`
	Cap      int  `json:"cap"`
	SameDay  int  `json:"same_day"`
	Required int  `json:"required"`
	Ready    bool `json:"ready"`
}

// Buffer keeps a rolling candle window per tag and the indicator history
// derived from it. Indicators are recomputed from scratch on every Compute.
// Buffer is owned by the orchestrator goroutine and is not safe for
// concurrent use.
type Buffer struct {
	cfg     BufferConfig
	windows map[model.Tag]*ringbuf.Window
	history map[model.Tag][]Row
	snaps   map[model.Tag]Snapshot
}

// NewBuffer creates an empty Buffer.
func NewBuffer(cfg BufferConfig) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultBufferConfig().Capacity
	}
	b := &Buffer{
		cfg:     cfg,
		windows: make(map[model.Tag]*ringbuf.Window, len(model.Tags)),
		history: make(map[model.Tag][]Row, len(model.Tags)),
		snaps:   make(map[model.Tag]Snapshot, len(model.Tags)),
	}
	for _, tag := range model.Tags {
		b.windows[tag] = ringbuf.New(cfg.Capacity)
	}
	return b
}

// Config returns the buffer configuration.
func (b *Buffer) Config() BufferConfig { return b.cfg }

// AddCandle appends c to tag's window, evicting the oldest candle when full.
func (b *Buffer) AddCandle(tag model.Tag, c model.Candle) {
	w, ok := b.windows[tag]
	if !ok {
		w = ringbuf.New(b.cfg.Capacity)
		b.windows[tag] = w
	}
	c.Tag = tag
	w.Push(c)
}

// Compute recomputes tag's indicators over its whole window.
// It returns false, leaving the previous snapshot untouched, while the
// window is below the warm-up gates. That is a normal state, not an error.
func (b *Buffer) Compute(tag model.Tag) bool {
	w, ok := b.windows[tag]
	if !ok || w.Len() < b.required(tag) {
		return false
	}
	if tag == model.TagNifty && b.sameDay(w) < b.cfg.MinSameDay {
		return false
	}

	periods := b.periods(tag)
	rows := Compute(w.Snapshot(), periods)
	b.history[tag] = rows
	b.snaps[tag] = Snapshot{Tag: tag, Periods: periods, Row: rows[len(rows)-1]}
	return true
}

// Snapshot returns the last computed snapshot for tag.
func (b *Buffer) Snapshot(tag model.Tag) (Snapshot, bool) {
	s, ok := b.snaps[tag]
	return s, ok
}

// History returns the indicator rows from the last successful Compute.
// The slice must not be modified.
func (b *Buffer) History(tag model.Tag) []Row {
	return b.history[tag]
}

// Len returns the number of candles held for tag.
func (b *Buffer) Len(tag model.Tag) int {
	if w, ok := b.windows[tag]; ok {
		return w.Len()
	}
	return 0
}

// Last returns the newest candle for tag.
func (b *Buffer) Last(tag model.Tag) (model.Candle, bool) {
	if w, ok := b.windows[tag]; ok {
		return w.Last()
	}
	return model.Candle{}, false
}

// SameDayCount returns how many of tag's candles share the newest candle's trading day.
func (b *Buffer) SameDayCount(tag model.Tag) int {
	if w, ok := b.windows[tag]; ok {
		return b.sameDay(w)
	}
	return 0
}

// ResetLeg clears an option leg's window, used when the strike rolls.
func (b *Buffer) ResetLeg(tag model.Tag) {
	if w, ok := b.windows[tag]; ok {
		w.Reset()
	}
	delete(b.history, tag)
	delete(b.snaps, tag)
}

// Status reports window fill and readiness per tag.
func (b *Buffer) Status() map[model.Tag]Status {
	out := make(map[model.Tag]Status, len(b.windows))
	for tag, w := range b.windows {
		st := Status{Len: w.Len(), Cap: w.Cap(), Required: b.required(tag)}
		ready := st.Len >= st.Required
		if tag == model.TagNifty {
			st.SameDay = b.sameDay(w)
			ready = ready && st.SameDay >= b.cfg.MinSameDay
		}
		st.Ready = ready
		out[tag] = st
	}
	return out
}

func (b *Buffer) required(tag model.Tag) int {
	if tag == model.TagNifty {
		return b.cfg.MinCandles
	}
	return b.cfg.MinOptionCandles
}

func (b *Buffer) periods(tag model.Tag) Periods {
	if tag == model.TagNifty {
		return b.cfg.Nifty
	}
	return b.cfg.Option
}

// sameDay counts back from the newest candle while the trading day matches.
func (b *Buffer) sameDay(w *ringbuf.Window) int {
	last, ok := w.Last()
	if !ok {
		return 0
	}
	day := markethours.TradingDay(last.TS)
	n := 0
	for i := w.Len() - 1; i >= 0; i-- {
		if markethours.TradingDay(w.At(i).TS) != day {
			break
		}
		n++
	}
	return n
}
