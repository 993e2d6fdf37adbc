package model

import (
	"encoding/json"
	"math"
	"time"
)

// Tag identifies one of the instruments the bot tracks each session.
type Tag string

const (
	TagNifty Tag = "NIFTY" // primary underlying (index or mapped future)
	TagCE    Tag = "CE"
	TagPE    Tag = "PE"
)

// Tags lists every tracked instrument tag in processing order.
var Tags = []Tag{TagNifty, TagCE, TagPE}

// Valid reports whether t is a known instrument tag.
func (t Tag) Valid() bool {
	return t == TagNifty || t == TagCE || t == TagPE
}

// Side is the direction of an entry signal. Both sides buy premium.
type Side string

const (
	SideNone Side = ""
	SideCE   Side = "BUY_CE"
	SidePE   Side = "BUY_PE"
)

// Valid reports whether s is BUY_CE or BUY_PE.
func (s Side) Valid() bool {
	return s == SideCE || s == SidePE
}

// Leg returns the option tag traded for this side.
func (s Side) Leg() Tag {
	switch s {
	case SideCE:
		return TagCE
	case SidePE:
		return TagPE
	}
	return ""
}

// Candle is a closed 5-minute OHLCV bar for one instrument.
// Prices are rupees; timestamps are the bar start in IST.
type Candle struct {
	Tag    Tag       `json:"tag"`
	Symbol string    `json:"symbol,omitempty"`
	Strike int       `json:"strike,omitempty"` // option legs only
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Key returns "tag:unix" which is unique per instrument bar.
func (c *Candle) Key() string {
	return string(c.Tag) + ":" + itoa(c.TS.Unix())
}

// Valid reports whether all prices are finite and the bar is well formed.
func (c *Candle) Valid() bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return c.High >= c.Low && !c.TS.IsZero()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Batch is the set of candles that closed at the same timestamp,
// handed to the orchestrator as one event.
type Batch struct {
	TS      time.Time      `json:"ts"`
	Candles map[Tag]Candle `json:"candles"`
	Strike  int            `json:"strike,omitempty"`
}

// NewBatch builds a batch for ts from the given candles.
func NewBatch(ts time.Time, candles ...Candle) Batch {
	b := Batch{TS: ts, Candles: make(map[Tag]Candle, len(candles))}
	for _, c := range candles {
		b.Candles[c.Tag] = c
		if b.Strike == 0 && c.Strike > 0 {
			b.Strike = c.Strike
		}
	}
	return b
}

// Get returns the candle for tag, if present.
func (b Batch) Get(tag Tag) (Candle, bool) {
	c, ok := b.Candles[tag]
	return c, ok
}

// Tick is an intra-candle last traded price, used for unrealized P&L only.
type Tick struct {
	Tag   Tag       `json:"tag"`
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
