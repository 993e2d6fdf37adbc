package model

// EventKind distinguishes the inputs the trading loop consumes.
type EventKind int

const (
	EventCandles EventKind = iota // a batch of closed candles
	EventTick                     // an intra-candle price update
)

func (k EventKind) String() string {
	switch k {
	case EventCandles:
		return "candles"
	case EventTick:
		return "tick"
	}
	return "unknown"
}

// Event is one item on the trading loop's input queue.
type Event struct {
	Kind  EventKind
	Batch Batch
	Ticks []Tick
}

// CandleEvent wraps a batch.
func CandleEvent(b Batch) Event { return Event{Kind: EventCandles, Batch: b} }

// TickEvent wraps one or more ticks taken at the same moment.
func TickEvent(ticks ...Tick) Event { return Event{Kind: EventTick, Ticks: ticks} }
