package model

import (
	"math"
	"testing"
	"time"
)

func TestSideLeg(t *testing.T) {
	if SideCE.Leg() != TagCE || SidePE.Leg() != TagPE || SideNone.Leg() != "" {
		t.Fatal("unexpected leg mapping")
	}
	if SideNone.Valid() || !SidePE.Valid() {
		t.Fatal("unexpected validity")
	}
}

func TestCandleValid(t *testing.T) {
	ts := time.Unix(1772422500, 0)
	good := Candle{Tag: TagNifty, TS: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5}
	if !good.Valid() {
		t.Fatal("expected valid candle")
	}

	cases := map[string]Candle{
		"nan close":  {TS: ts, Open: 1, High: 2, Low: 0.5, Close: math.NaN()},
		"high < low": {TS: ts, Open: 1, High: 0.4, Low: 0.5, Close: 1},
		"zero time":  {Open: 1, High: 2, Low: 0.5, Close: 1},
		"negative":   {TS: ts, Open: -1, High: 2, Low: 0.5, Close: 1},
	}
	for name, c := range cases {
		if c.Valid() {
			t.Errorf("%s: expected invalid", name)
		}
	}
}

func TestCandleKey(t *testing.T) {
	c := Candle{Tag: TagCE, TS: time.Unix(1772422500, 0)}
	if got := c.Key(); got != "CE:1772422500" {
		t.Errorf("Key() = %q", got)
	}
}

func TestNewBatchTakesOptionStrike(t *testing.T) {
	ts := time.Unix(1772422500, 0)
	b := NewBatch(ts,
		Candle{Tag: TagNifty, TS: ts},
		Candle{Tag: TagCE, TS: ts, Strike: 22050},
		Candle{Tag: TagPE, TS: ts, Strike: 22050},
	)
	if b.Strike != 22050 {
		t.Errorf("strike = %d", b.Strike)
	}
	if _, ok := b.Get(TagPE); !ok {
		t.Error("missing PE candle")
	}
	if _, ok := b.Get(Tag("FUT")); ok {
		t.Error("unexpected tag present")
	}
}

func TestEventConstructors(t *testing.T) {
	if e := TickEvent(Tick{Tag: TagCE, Price: 1}); e.Kind != EventTick || len(e.Ticks) != 1 {
		t.Fatalf("tick event: %+v", e)
	}
	if EventCandles.String() != "candles" {
		t.Error("kind string")
	}
}
