package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"niftybot/internal/broker"
	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// MarketAPI is the broker surface the live poller uses.
type MarketAPI interface {
	Candles(ctx context.Context, req broker.CandleRequest) ([]model.Candle, error)
	LTP(ctx context.Context, inst broker.Instrument) (float64, error)
}

// LiveConfig describes the instruments and cadence of a live session.
type LiveConfig struct {
	Instruments map[model.Tag]broker.Instrument // NIFTY, CE, PE
	Strike      int
	Session     markethours.Session

	WarmupDays int           // trading days of history fetched before the session (default 5)
	Settle     time.Duration // wait after a boundary before fetching (default 3s)
	TickEvery  time.Duration // LTP poll interval between boundaries; 0 disables
	Retries    int           // fetch attempts per boundary (default 3)
}

// LivePoller fetches each just-closed 5-minute candle from the broker after
// its boundary and emits it as one batch.
type LivePoller struct {
	api MarketAPI
	cfg LiveConfig
	seq *Sequencer
	now func() time.Time
}

// NewLivePoller creates a poller. cfg.Instruments must hold NIFTY, CE and PE.
func NewLivePoller(api MarketAPI, cfg LiveConfig) (*LivePoller, error) {
	for _, tag := range model.Tags {
		if _, ok := cfg.Instruments[tag]; !ok {
			return nil, fmt.Errorf("live poller: no instrument for %s", tag)
		}
	}
	if cfg.Session.Name == "" {
		cfg.Session = markethours.NSE
	}
	if cfg.WarmupDays <= 0 {
		cfg.WarmupDays = 5
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 3 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &LivePoller{api: api, cfg: cfg, seq: NewSequencer(), now: time.Now}, nil
}

// Name implements Source.
func (p *LivePoller) Name() string { return "live-poll" }

// Warmup fetches the last WarmupDays trading days plus today's closed candles.
func (p *LivePoller) Warmup(ctx context.Context) ([]model.Batch, error) {
	now := p.now().In(markethours.IST)
	days := markethours.PreviousTradingDays(now, p.cfg.WarmupDays)
	from := p.cfg.Session.Open.On(days[len(days)-1])
	to := markethours.CandleStart(now)

	var all []model.Candle
	for _, tag := range model.Tags {
		candles, err := p.fetch(ctx, tag, from, to)
		if err != nil {
			return nil, fmt.Errorf("warmup %s: %w", tag, err)
		}
		for _, c := range candles {
			if c.TS.Before(to) {
				all = append(all, c)
			}
		}
		log.Printf("[live] warmup %s: %d candles since %s", tag, len(candles), from.Format("2006-01-02"))
	}
	batches := Sequence(all)
	for _, b := range batches {
		for _, c := range b.Candles {
			p.seq.Add(c)
		}
	}
	p.seq.Flush()
	return batches, nil
}

// Run polls until the session closes or ctx is cancelled.
func (p *LivePoller) Run(ctx context.Context, out chan<- model.Event) error {
	var tick <-chan time.Time
	if p.cfg.TickEvery > 0 {
		t := time.NewTicker(p.cfg.TickEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		now := p.now()
		closeAt := p.cfg.Session.TodayClose(now)
		if !now.Before(closeAt.Add(p.cfg.Settle)) {
			log.Printf("[live] session %s closed at %s", p.cfg.Session.Name, closeAt.Format("15:04"))
			return nil
		}
		if !p.cfg.Session.IsOpen(now) && now.Before(p.cfg.Session.Open.On(now)) {
			log.Printf("[live] waiting for %s open: %s", p.cfg.Session.Name, markethours.StatusString(now))
		}

		boundary := markethours.NextCandleClose(now)
		timer := time.NewTimer(boundary.Add(p.cfg.Settle).Sub(now))

	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-tick:
				if p.cfg.Session.IsOpen(p.now()) {
					p.pollTicks(ctx, out)
				}
			case <-timer.C:
				break wait
			}
		}

		if boundary.After(p.cfg.Session.Open.On(boundary)) {
			if err := p.emitClosed(ctx, boundary, out); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[live] candle %s: %v", boundary.Add(-markethours.CandleInterval).Format("15:04"), err)
			}
		}
	}
}

// emitClosed fetches the candle that closed at boundary for every tag.
func (p *LivePoller) emitClosed(ctx context.Context, boundary time.Time, out chan<- model.Event) error {
	start := boundary.Add(-markethours.CandleInterval)
	var errs []error
	for _, tag := range model.Tags {
		c, err := p.closedCandle(ctx, tag, start)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tag, err))
			continue
		}
		for _, b := range p.seq.Add(c) {
			if err := send(ctx, out, model.CandleEvent(b)); err != nil {
				return err
			}
		}
	}
	// a leg that never arrived still releases the rest of the batch
	for _, b := range p.seq.Flush() {
		if err := send(ctx, out, model.CandleEvent(b)); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func (p *LivePoller) closedCandle(ctx context.Context, tag model.Tag, start time.Time) (model.Candle, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		candles, err := p.fetch(ctx, tag, start, start.Add(markethours.CandleInterval))
		if err == nil {
			for _, c := range candles {
				if c.TS.Equal(start) {
					return c, nil
				}
			}
			err = fmt.Errorf("candle %s not yet published", start.Format("15:04"))
		}
		lastErr = err
		if attempt < p.cfg.Retries {
			select {
			case <-ctx.Done():
				return model.Candle{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return model.Candle{}, lastErr
}

func (p *LivePoller) fetch(ctx context.Context, tag model.Tag, from, to time.Time) ([]model.Candle, error) {
	inst := p.cfg.Instruments[tag]
	candles, err := p.api.Candles(ctx, broker.CandleRequest{Instrument: inst, From: from, To: to})
	if err != nil {
		return nil, err
	}
	for i := range candles {
		candles[i].Tag = tag
		if candles[i].Symbol == "" {
			candles[i].Symbol = inst.Symbol
		}
		if tag != model.TagNifty {
			candles[i].Strike = p.cfg.Strike
		}
	}
	return candles, nil
}

// pollTicks sends one tick event with the current LTP of every leg.
// Failures are logged and skipped; ticks only refresh unrealized P&L.
func (p *LivePoller) pollTicks(ctx context.Context, out chan<- model.Event) {
	at := p.now()
	ticks := make([]model.Tick, 0, len(model.Tags))
	for _, tag := range model.Tags {
		ltp, err := p.api.LTP(ctx, p.cfg.Instruments[tag])
		if err != nil {
			log.Printf("[live] ltp %s: %v", tag, err)
			continue
		}
		ticks = append(ticks, model.Tick{Tag: tag, Price: ltp, At: at})
	}
	if len(ticks) == 0 {
		return
	}
	select {
	case out <- model.TickEvent(ticks...):
	default:
		log.Printf("[live] event queue full, dropping tick update")
	}
}
