package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"strconv"
	"time"

	"niftybot/internal/execution"
	"niftybot/internal/indicator"
	"niftybot/internal/model"
	"niftybot/internal/portfolio"
)

// Update kinds pushed to dashboards and the Redis channel.
const (
	UpdateStatus = "status"
	UpdateSignal = "signal"
	UpdateTrade  = "trade"
)

// Update is one message on the bot's outbound stream.
type Update struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"ts"`
	Data any       `json:"data"`
}

// Status is the bot's view of the session after a candle or tick.
type Status struct {
	Time    time.Time                      `json:"ts"`
	Preset  string                         `json:"preset"`
	State   string                         `json:"state"`
	Reason  string                         `json:"reason,omitempty"`
	Strike  int                            `json:"strike,omitempty"`
	Nifty   *Indicators                    `json:"nifty,omitempty"`
	Prices  map[model.Tag]float64          `json:"prices"`
	Open    []execution.Position           `json:"open_positions"`
	Pending *execution.PendingSignal       `json:"pending,omitempty"`
	Stats   portfolio.Summary              `json:"stats"`
	Buffers map[model.Tag]indicator.Status `json:"buffers"`
	Risk    map[string]interface{}         `json:"risk,omitempty"`
}

// Bot states reported in Status.State.
const (
	StateWarming    = "WARMING_UP"
	StateScanning   = "SCANNING"
	StatePending    = "SIGNAL_PENDING"
	StateInPosition = "IN_POSITION"
	StateBlocked    = "BLOCKED"
	StateStopped    = "STOPPED"
)

// Indicators is the JSON view of a NIFTY snapshot. Undefined values
// encode as null.
type Indicators struct {
	TS       time.Time `json:"ts"`
	Close    num       `json:"close"`
	EMA      num       `json:"ema"`
	MACDHist num       `json:"macd_hist"`
	VIPlus   num       `json:"vi_plus"`
	VIMinus  num       `json:"vi_minus"`
	ATR      num       `json:"atr"`
	Chop     num       `json:"choppiness"`
}

func indicatorsOf(s indicator.Snapshot) *Indicators {
	return &Indicators{
		TS:       s.TS,
		Close:    num(s.Close),
		EMA:      num(s.EMA),
		MACDHist: num(s.MACDHist),
		VIPlus:   num(s.VIPlus),
		VIMinus:  num(s.VIMinus),
		ATR:      num(s.ATR),
		Chop:     num(s.Chop),
	}
}

type num float64

func (n num) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
}

// SignalUpdate is published when a signal is queued.
type SignalUpdate struct {
	Side       model.Side `json:"side"`
	SignalTime time.Time  `json:"signal_time"`
	NiftyClose float64    `json:"nifty_close"`
	Strike     int        `json:"strike"`
	OptionLTP  num        `json:"option_ltp"`
}

// TradeUpdate describes an entry, a TP1 hit or an exit.
type TradeUpdate struct {
	Event    string                    `json:"event"`
	Position execution.Position        `json:"position"`
	Closed   *execution.ClosedPosition `json:"closed,omitempty"`
}

// Publisher is the outbound side of an update channel, e.g. Redis pub/sub.
type Publisher interface {
	Publish(ctx context.Context, kind string, data []byte) error
}

// ForwardUpdates drains sub into pub until sub is closed or ctx ends.
// Encoding or publish failures are logged and skipped.
func ForwardUpdates(ctx context.Context, sub <-chan Update, pub Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub:
			if !ok {
				return
			}
			b, err := json.Marshal(u)
			if err != nil {
				log.Printf("[updates] encode %s: %v", u.Kind, err)
				continue
			}
			if err := pub.Publish(ctx, u.Kind, b); err != nil {
				log.Printf("[updates] publish %s: %v", u.Kind, err)
			}
		}
	}
}
