// Package resolver maps a spot price to the tradable ATM option pair, and
// a commodity root to its front-month MCX future.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"niftybot/internal/broker"
	"niftybot/internal/markethours"
)

// ErrNotResolved is returned when no instrument matches the request.
var ErrNotResolved = errors.New("resolver: instrument not resolved")

// Searcher is the slice of the broker API the resolvers need.
type Searcher interface {
	SearchScrip(ctx context.Context, exchange, query string) ([]broker.Instrument, error)
}

// DefaultStrikeStep is the NIFTY strike interval.
const DefaultStrikeStep = 50

// ATMStrike rounds spot to the nearest multiple of step.
func ATMStrike(spot float64, step int) int {
	if step <= 0 {
		step = DefaultStrikeStep
	}
	return int(math.Round(spot/float64(step))) * step
}

// expiryLayout matches the DDMMMYY date inside SmartAPI trading symbols.
const expiryLayout = "02Jan06"

// Instruments is the resolved option pair for one session.
type Instruments struct {
	Strike int
	Expiry time.Time
	CE     broker.Instrument
	PE     broker.Instrument
}

// NiftyResolver finds the nearest weekly expiry CE/PE at the ATM strike.
type NiftyResolver struct {
	search Searcher
	step   int
	root   string
	now    func() time.Time
}

// NewNiftyResolver creates a resolver for NIFTY options.
func NewNiftyResolver(s Searcher) *NiftyResolver {
	return &NiftyResolver{search: s, step: DefaultStrikeStep, root: "NIFTY", now: time.Now}
}

// WithStrikeStep overrides the strike interval; non-positive keeps the default.
func (r *NiftyResolver) WithStrikeStep(step int) *NiftyResolver {
	if step > 0 {
		r.step = step
	}
	return r
}

var optionSymbol = regexp.MustCompile(`^([A-Z]+)(\d{2}[A-Z]{3}\d{2})(\d+)(CE|PE)$`)

// Resolve returns the ATM pair for spot.
func (r *NiftyResolver) Resolve(ctx context.Context, spot float64) (Instruments, error) {
	if spot <= 0 || math.IsNaN(spot) {
		return Instruments{}, fmt.Errorf("%w: invalid spot %v", ErrNotResolved, spot)
	}
	strike := ATMStrike(spot, r.step)

	scrips, err := r.search.SearchScrip(ctx, broker.ExchangeNFO, r.root)
	if err != nil {
		return Instruments{}, fmt.Errorf("resolve %s %d: %w", r.root, strike, err)
	}

	today := startOfDay(r.now())
	byExpiry := make(map[time.Time]*Instruments)
	for _, s := range scrips {
		m := optionSymbol.FindStringSubmatch(strings.ToUpper(s.Symbol))
		if m == nil || m[1] != r.root {
			continue
		}
		k, err := strconv.Atoi(m[3])
		if err != nil || k != strike {
			continue
		}
		exp, err := time.ParseInLocation(expiryLayout, m[2], markethours.IST)
		if err != nil || exp.Before(today) {
			continue
		}
		in, ok := byExpiry[exp]
		if !ok {
			in = &Instruments{Strike: strike, Expiry: exp}
			byExpiry[exp] = in
		}
		if m[4] == "CE" {
			in.CE = s
		} else {
			in.PE = s
		}
	}

	expiries := make([]time.Time, 0, len(byExpiry))
	for exp, in := range byExpiry {
		if in.CE.Token != "" && in.PE.Token != "" {
			expiries = append(expiries, exp)
		}
	}
	if len(expiries) == 0 {
		return Instruments{}, fmt.Errorf("%w: no %s %d CE/PE pair expiring on or after %s",
			ErrNotResolved, r.root, strike, today.Format("2006-01-02"))
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	out := *byExpiry[expiries[0]]
	log.Printf("[resolver] spot=%.2f ATM=%d expiry=%s CE=%s PE=%s",
		spot, strike, out.Expiry.Format("2006-01-02"), out.CE.Symbol, out.PE.Symbol)
	return out, nil
}

// Commodity lot sizes on MCX.
var commodityLots = map[string]int{
	"CRUDEOIL":   100,
	"NATURALGAS": 1250,
}

// Future is a resolved commodity futures contract.
type Future struct {
	Instrument broker.Instrument
	Expiry     time.Time
	LotSize    int
}

// CommodityResolver finds the nearest-expiry MCX future for a root symbol.
type CommodityResolver struct {
	search Searcher
	now    func() time.Time
}

// NewCommodityResolver creates a resolver for MCX futures.
func NewCommodityResolver(s Searcher) *CommodityResolver {
	return &CommodityResolver{search: s, now: time.Now}
}

// LotSize returns the contract lot size for root, or 0 when unknown.
func LotSize(root string) int {
	return commodityLots[strings.ToUpper(root)]
}

var futureSymbol = regexp.MustCompile(`^([A-Z]+)(\d{2}[A-Z]{3}\d{2})FUT$`)

// Resolve returns the front-month future for root (CRUDEOIL, NATURALGAS).
// Mini contracts such as CRUDEOILM are not matched.
func (r *CommodityResolver) Resolve(ctx context.Context, root string) (Future, error) {
	root = strings.ToUpper(strings.TrimSpace(root))
	lot := LotSize(root)
	if lot == 0 {
		return Future{}, fmt.Errorf("%w: unsupported commodity %q", ErrNotResolved, root)
	}

	scrips, err := r.search.SearchScrip(ctx, broker.ExchangeMCX, root)
	if err != nil {
		return Future{}, fmt.Errorf("resolve %s: %w", root, err)
	}

	today := startOfDay(r.now())
	var best *Future
	for _, s := range scrips {
		m := futureSymbol.FindStringSubmatch(strings.ToUpper(s.Symbol))
		if m == nil || m[1] != root {
			continue
		}
		exp, err := time.ParseInLocation(expiryLayout, m[2], markethours.IST)
		if err != nil || exp.Before(today) {
			continue
		}
		if best == nil || exp.Before(best.Expiry) {
			best = &Future{Instrument: s, Expiry: exp, LotSize: lot}
		}
	}
	if best == nil {
		return Future{}, fmt.Errorf("%w: no active %s future", ErrNotResolved, root)
	}

	log.Printf("[resolver] %s front month %s expiry=%s lot=%d",
		root, best.Instrument.Symbol, best.Expiry.Format("2006-01-02"), best.LotSize)
	return *best, nil
}

func startOfDay(t time.Time) time.Time {
	ist := t.In(markethours.IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, markethours.IST)
}
