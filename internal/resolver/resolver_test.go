package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"niftybot/internal/broker"
	"niftybot/internal/markethours"
)

type fakeSearch struct {
	results map[string][]broker.Instrument
	err     error
	calls   []string
}

func (f *fakeSearch) SearchScrip(_ context.Context, exchange, query string) ([]broker.Instrument, error) {
	f.calls = append(f.calls, exchange+":"+query)
	return f.results[exchange], f.err
}

func fixedNow() time.Time { return time.Date(2026, 3, 4, 9, 20, 0, 0, markethours.IST) }

func TestATMStrike(t *testing.T) {
	tests := []struct {
		spot float64
		want int
	}{
		{22012.4, 22000},
		{22024.99, 22000},
		{22025, 22050},
		{22049, 22050},
		{21975.5, 22000},
	}
	for _, tt := range tests {
		if got := ATMStrike(tt.spot, 50); got != tt.want {
			t.Errorf("ATMStrike(%v) = %d, want %d", tt.spot, got, tt.want)
		}
	}
	if got := ATMStrike(22030, 0); got != 22050 {
		t.Errorf("ATMStrike with zero step = %d, want default step", got)
	}
}

func TestNiftyResolverPicksNearestCompleteExpiry(t *testing.T) {
	fs := &fakeSearch{results: map[string][]broker.Instrument{
		broker.ExchangeNFO: {
			{Exchange: "NFO", Symbol: "NIFTY03MAR2622000CE", Token: "1"}, // expired
			{Exchange: "NFO", Symbol: "NIFTY03MAR2622000PE", Token: "2"},
			{Exchange: "NFO", Symbol: "NIFTY10MAR2622000CE", Token: "3"},
			{Exchange: "NFO", Symbol: "NIFTY10MAR2622000PE", Token: "4"},
			{Exchange: "NFO", Symbol: "NIFTY17MAR2622000CE", Token: "5"},
			{Exchange: "NFO", Symbol: "NIFTY17MAR2622000PE", Token: "6"},
			{Exchange: "NFO", Symbol: "NIFTY10MAR2622050CE", Token: "7"}, // other strike
			{Exchange: "NFO", Symbol: "BANKNIFTY10MAR2622000CE", Token: "8"},
		},
	}}
	r := NewNiftyResolver(fs)
	r.now = fixedNow

	got, err := r.Resolve(context.Background(), 22012.4)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Strike != 22000 {
		t.Errorf("strike = %d", got.Strike)
	}
	if got.CE.Token != "3" || got.PE.Token != "4" {
		t.Errorf("pair = %s/%s, want 3/4", got.CE.Token, got.PE.Token)
	}
	if got.Expiry.Format("2006-01-02") != "2026-03-10" {
		t.Errorf("expiry = %s", got.Expiry)
	}
}

func TestNiftyResolverNeedsBothLegs(t *testing.T) {
	fs := &fakeSearch{results: map[string][]broker.Instrument{
		broker.ExchangeNFO: {{Symbol: "NIFTY10MAR2622000CE", Token: "3"}},
	}}
	r := NewNiftyResolver(fs)
	r.now = fixedNow

	if _, err := r.Resolve(context.Background(), 22000); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("err = %v, want ErrNotResolved", err)
	}
}

func TestNiftyResolverRejectsBadSpot(t *testing.T) {
	r := NewNiftyResolver(&fakeSearch{})
	if _, err := r.Resolve(context.Background(), 0); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("err = %v", err)
	}
}

func TestNiftyResolverPropagatesSearchError(t *testing.T) {
	boom := errors.New("boom")
	r := NewNiftyResolver(&fakeSearch{err: boom})
	if _, err := r.Resolve(context.Background(), 22000); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestCommodityResolverFrontMonth(t *testing.T) {
	fs := &fakeSearch{results: map[string][]broker.Instrument{
		broker.ExchangeMCX: {
			{Exchange: "MCX", Symbol: "CRUDEOIL18FEB26FUT", Token: "10"}, // expired
			{Exchange: "MCX", Symbol: "CRUDEOIL19APR26FUT", Token: "12"},
			{Exchange: "MCX", Symbol: "CRUDEOIL19MAR26FUT", Token: "11"},
			{Exchange: "MCX", Symbol: "CRUDEOILM19MAR26FUT", Token: "20"}, // mini
			{Exchange: "MCX", Symbol: "CRUDEOIL19MAR265000CE", Token: "30"},
		},
	}}
	r := NewCommodityResolver(fs)
	r.now = fixedNow

	got, err := r.Resolve(context.Background(), "crudeoil")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Instrument.Token != "11" || got.LotSize != 100 {
		t.Errorf("got %+v", got)
	}
	if fs.calls[0] != "MCX:CRUDEOIL" {
		t.Errorf("search call = %q", fs.calls[0])
	}
}

func TestCommodityResolverUnknownRoot(t *testing.T) {
	r := NewCommodityResolver(&fakeSearch{})
	if _, err := r.Resolve(context.Background(), "GOLD"); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("err = %v", err)
	}
	if LotSize("NATURALGAS") != 1250 {
		t.Errorf("NATURALGAS lot = %d", LotSize("NATURALGAS"))
	}
}

func TestNiftyResolverStrikeStep(t *testing.T) {
	fs := &fakeSearch{results: map[string][]broker.Instrument{
		broker.ExchangeNFO: {
			{Exchange: "NFO", Symbol: "NIFTY10MAR2622100CE", Token: "1"},
			{Exchange: "NFO", Symbol: "NIFTY10MAR2622100PE", Token: "2"},
		},
	}}
	r := NewNiftyResolver(fs).WithStrikeStep(100)
	r.now = fixedNow

	got, err := r.Resolve(context.Background(), 22080)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Strike != 22100 || got.CE.Token != "1" {
		t.Errorf("got %d %s, want 22100 with step 100", got.Strike, got.CE.Token)
	}
}
