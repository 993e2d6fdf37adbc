// Package ringbuf provides a fixed-capacity rolling window of model.Candle.
// When the window is full, Push evicts the oldest candle (bounded-deque
// semantics). It is owned by a single goroutine and is not safe for
// concurrent use.
package ringbuf

import "niftybot/internal/model"

// Window is a bounded FIFO of candles ordered oldest → newest.
type Window struct {
	buf  []model.Candle
	head int // index of the oldest element
	n    int

	// total number of candles evicted since creation (for metrics)
	evicted uint64
}

// New creates a window holding at most capacity candles.
// Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Candle, capacity)}
}

// Push appends a candle. Returns true if the oldest candle was evicted.
func (w *Window) Push(c model.Candle) bool {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = c
		w.n++
		return false
	}
	w.buf[w.head] = c
	w.head = (w.head + 1) % len(w.buf)
	w.evicted++
	return true
}

// At returns the i-th candle, where 0 is the oldest. Panics when out of range.
func (w *Window) At(i int) model.Candle {
	if i < 0 || i >= w.n {
		panic("ringbuf: index out of range")
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

// Last returns the newest candle.
func (w *Window) Last() (model.Candle, bool) {
	if w.n == 0 {
		return model.Candle{}, false
	}
	return w.At(w.n - 1), true
}

// Snapshot returns an ordered copy of the window contents.
func (w *Window) Snapshot() []model.Candle {
	out := make([]model.Candle, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Len returns the current number of candles in the window.
func (w *Window) Len() int { return w.n }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Evicted returns the total number of candles dropped by Push.
func (w *Window) Evicted() uint64 { return w.evicted }

// Reset empties the window, keeping its capacity.
func (w *Window) Reset() {
	w.head, w.n = 0, 0
	for i := range w.buf {
		w.buf[i] = model.Candle{}
	}
}
