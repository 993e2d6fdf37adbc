// Package orchestrator drives one trading session: it owns the indicator
// buffer, the signal queue and the position ledger, and processes closed
// candles strictly one at a time.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"math"
	"sync"
	"time"

	"niftybot/internal/execution"
	"niftybot/internal/indicator"
	"niftybot/internal/logger"
	"niftybot/internal/marketdata/bus"
	"niftybot/internal/markethours"
	"niftybot/internal/metrics"
	"niftybot/internal/model"
	"niftybot/internal/notification"
	"niftybot/internal/portfolio"
	"niftybot/internal/strategy"
)

// Config is the trading configuration of a Bot.
type Config struct {
	Params strategy.Params
	Buffer indicator.BufferConfig
	Risk   portfolio.RiskLimits
}

// Deps are the optional collaborators of a Bot. Nil members are skipped.
type Deps struct {
	Recorder execution.Recorder
	Alerts   Alerter
	Metrics  *metrics.Metrics
	Updates  *bus.FanOut[Update]
	Logger   *slog.Logger
	Now      func() time.Time
}

// Bot is the per-candle trading core. Candle and tick handlers must be
// called from a single goroutine; Status may be read from any goroutine.
type Bot struct {
	params strategy.Params
	buf    *indicator.Buffer
	eval   *strategy.Evaluator
	ledger *execution.Ledger
	queue  *execution.SignalQueue
	risk   *portfolio.RiskGuard

	rec     execution.Recorder
	alerts  Alerter
	prom    *metrics.Metrics
	updates *bus.FanOut[Update]
	slog    *slog.Logger
	now     func() time.Time

	prices     map[model.Tag]float64
	strike     int
	lastCandle time.Time
	stopped    bool

	mu     sync.RWMutex
	status Status
}

// CycleResult reports what one candle did.
type CycleResult struct {
	TS        time.Time
	Ready     bool                       // NIFTY indicators computed
	Entered   *execution.Position        // pending signal filled this candle
	Dropped   error                      // pending signal dropped for bad data
	TP1       []string                   // order ids that first reached TP1
	Closed    []execution.ClosedPosition // exits this candle
	Signal    model.Side                 // new signal queued, or SideNone
	Blocked   string                     // risk limit that suppressed scanning
	Duplicate bool                       // batch at or before the last processed candle
}

// New builds a Bot. The params must already be validated.
func New(cfg Config, deps Deps) *Bot {
	ledger := execution.NewLedger(cfg.Params, nil)
	b := &Bot{
		params:  cfg.Params,
		buf:     indicator.NewBuffer(cfg.Buffer),
		eval:    strategy.NewEvaluator(cfg.Params),
		ledger:  ledger,
		queue:   execution.NewSignalQueue(cfg.Params, ledger),
		risk:    portfolio.NewRiskGuard(cfg.Risk, ledger.Tracker()),
		rec:     deps.Recorder,
		alerts:  deps.Alerts,
		prom:    deps.Metrics,
		updates: deps.Updates,
		slog:    deps.Logger,
		now:     deps.Now,
		prices:  make(map[model.Tag]float64, len(model.Tags)),
	}
	if b.rec == nil {
		b.rec = execution.Recorders(nil)
	}
	if b.slog == nil {
		b.slog = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.status = Status{Preset: cfg.Params.Name, State: StateWarming}
	return b
}

// Ledger exposes the position ledger.
func (b *Bot) Ledger() *execution.Ledger { return b.ledger }

// Queue exposes the T+1 signal queue.
func (b *Bot) Queue() *execution.SignalQueue { return b.queue }

// Buffer exposes the indicator buffer. Only the loop goroutine may use it.
func (b *Bot) Buffer() *indicator.Buffer { return b.buf }

// Params returns the running preset.
func (b *Bot) Params() strategy.Params { return b.params }

// LastCandle returns the timestamp of the last processed batch.
func (b *Bot) LastCandle() time.Time { return b.lastCandle }

// Warmup loads historical batches into the indicator buffer without
// trading and returns whether NIFTY indicators are ready afterwards.
func (b *Bot) Warmup(batches []model.Batch) bool {
	for _, batch := range batches {
		b.ingest(batch)
	}
	ready := b.compute()
	log.Printf("[bot] warm-up loaded %d batches, NIFTY=%d candles (same day %d), ready=%v",
		len(batches), b.buf.Len(model.TagNifty), b.buf.SameDayCount(model.TagNifty), ready)
	b.publishStatus(b.lastCandle, "")
	return ready
}

// Handle dispatches one queued event.
func (b *Bot) Handle(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventCandles:
		b.OnCandleClosed(ctx, ev.Batch)
	case model.EventTick:
		b.OnTick(ctx, ev.Ticks)
	default:
		log.Printf("[bot] unknown event kind %v", ev.Kind)
	}
}

// OnCandleClosed runs one trading cycle: indicators, then the pending
// signal's T+1 fill, then exits for open positions, then a fresh scan.
func (b *Bot) OnCandleClosed(ctx context.Context, batch model.Batch) CycleResult {
	res := CycleResult{TS: batch.TS}
	if b.stopped {
		return res
	}
	if !b.lastCandle.IsZero() && !batch.TS.After(b.lastCandle) {
		log.Printf("[bot] ignoring batch %s at or before %s",
			batch.TS.Format("15:04"), b.lastCandle.Format("15:04"))
		res.Duplicate = true
		if b.prom != nil {
			b.prom.DroppedCandles.Inc()
		}
		return res
	}

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(string(model.TagNifty), batch.TS))
	b.ledger.Tracker().Roll(batch.TS)
	if b.prom != nil {
		b.prom.BatchesTotal.Inc()
		b.prom.CandleLag.Set(b.now().Sub(batch.TS.Add(markethours.CandleInterval)).Seconds())
	}

	b.ingest(batch)
	// A batch without a usable NIFTY candle leaves the previous row in the
	// buffer and is never scanned.
	res.Ready = b.compute() && b.niftyAt(batch.TS)

	b.execute(ctx, batch, &res)
	closedThisCandle := b.manageExits(ctx, batch, &res)

	switch {
	case !res.Ready:
	case b.ledger.HasOpen() || b.queue.HasPending() || closedThisCandle:
	default:
		b.scan(ctx, batch, &res)
	}

	attrs := append(logger.LogWithTrace(ctx),
		slog.Time("ts", batch.TS),
		slog.Bool("ready", res.Ready),
		slog.String("signal", string(res.Signal)),
		slog.Int("open", len(b.ledger.OpenPositions())),
		slog.Bool("pending", b.queue.HasPending()),
	)
	b.slog.Debug("candle processed", attrs...)

	b.publishStatus(batch.TS, res.Blocked)
	return res
}

// OnTick marks open positions to the tick price. Ticks never trigger
// entries or exits.
func (b *Bot) OnTick(ctx context.Context, ticks []model.Tick) {
	if b.stopped {
		return
	}
	for _, t := range ticks {
		if !t.Tag.Valid() || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
			continue
		}
		b.prices[t.Tag] = t.Price
		if b.prom != nil {
			b.prom.TicksTotal.Inc()
		}
		for _, pos := range b.ledger.OpenPositions() {
			if pos.Side.Leg() == t.Tag {
				b.ledger.Mark(pos.OrderID, t.Price)
			}
		}
	}
	at := b.now()
	if len(ticks) > 0 {
		at = ticks[len(ticks)-1].At
	}
	b.publishStatus(at, "")
}

// Shutdown force-closes whatever is still open at the last known prices,
// drops any pending signal and stops the bot. It returns the forced exits.
func (b *Bot) Shutdown(ctx context.Context, at time.Time) []execution.ClosedPosition {
	if b.stopped {
		return nil
	}
	b.stopped = true

	if sig, ok := b.queue.Pending(); ok {
		log.Printf("[bot] discarding pending %s signal from %s", sig.Side, sig.SignalTime.Format("15:04"))
		b.queue.Clear()
	}

	ce, pe := b.price(model.TagCE), b.price(model.TagPE)
	prices := map[model.Side]float64{}
	for _, side := range []model.Side{model.SideCE, model.SidePE} {
		if p := execution.PriceFor(side, ce, pe); !math.IsNaN(p) {
			prices[side] = p
		}
	}
	closed := b.ledger.ForceCloseAll(prices, at)
	for i := range closed {
		b.onClosed(ctx, closed[i])
	}

	stats := b.ledger.Stats()
	log.Printf("[bot] stopped: %d trades today, realized %.2f INR, forced exits %d",
		stats.TotalTrades, stats.Realized, len(closed))
	b.notify(summaryAlert(stats, at))
	b.publishStatus(at, "")
	return closed
}

// Status returns the latest published status.
func (b *Bot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Bot) price(tag model.Tag) float64 {
	if p, ok := b.prices[tag]; ok {
		return p
	}
	return math.NaN()
}

func (b *Bot) ingest(batch model.Batch) {
	for _, tag := range model.Tags {
		c, ok := batch.Get(tag)
		if !ok || !c.Valid() {
			continue
		}
		b.buf.AddCandle(tag, c)
		b.prices[tag] = c.Close
		if b.prom != nil {
			b.prom.CandlesTotal.WithLabelValues(string(tag)).Inc()
		}
	}
	if batch.Strike > 0 && batch.Strike != b.strike {
		if b.strike != 0 {
			log.Printf("[bot] ATM strike %d -> %d", b.strike, batch.Strike)
		}
		b.strike = batch.Strike
	}
	if batch.TS.After(b.lastCandle) {
		b.lastCandle = batch.TS
	}
}

// compute refreshes every tag and reports NIFTY readiness.
func (b *Bot) compute() bool {
	start := time.Now()
	ready := false
	for _, tag := range model.Tags {
		ok := b.buf.Compute(tag)
		if tag == model.TagNifty {
			ready = ok
		}
		if b.prom != nil {
			b.prom.SetReady(string(tag), ok)
		}
	}
	if b.prom != nil {
		b.prom.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	}
	return ready
}

// niftyAt reports whether the latest NIFTY snapshot belongs to ts.
func (b *Bot) niftyAt(ts time.Time) bool {
	snap, ok := b.buf.Snapshot(model.TagNifty)
	return ok && snap.TS.Equal(ts)
}

// legBar assembles the option bar for side from this batch. The ATR is
// only used when the leg's snapshot belongs to this candle.
func (b *Bot) legBar(batch model.Batch, side model.Side) (execution.OptionBar, bool) {
	c, ok := batch.Get(side.Leg())
	if !ok {
		return execution.OptionBar{}, false
	}
	strike := c.Strike
	if strike == 0 {
		strike = b.strike
	}
	bar := execution.OptionBar{
		Symbol: c.Symbol,
		Strike: strike,
		TS:     c.TS,
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		ATR:    math.NaN(),
	}
	if snap, ok := b.buf.Snapshot(side.Leg()); ok && snap.TS.Equal(c.TS) {
		bar.ATR = snap.ATR
	}
	return bar, true
}

func (b *Bot) execute(ctx context.Context, batch model.Batch, res *CycleResult) {
	if !b.queue.HasPending() {
		return
	}
	sig, _ := b.queue.Pending()

	legs := make(map[model.Side]execution.OptionBar, 2)
	if bar, ok := b.legBar(batch, sig.Side); ok {
		legs[sig.Side] = bar
	}

	pos, err := b.queue.TryExecute(legs, batch.TS)
	if err != nil {
		res.Dropped = err
		reason := "rejected"
		if errors.Is(err, execution.ErrMissingData) {
			reason = "missing_data"
		}
		log.Printf("[bot] pending %s dropped: %v", sig.Side, err)
		if b.prom != nil {
			b.prom.SignalsRejected.WithLabelValues(reason).Inc()
		}
		b.record(ctx, "record event", b.rec.RecordEvent(ctx, execution.Event{
			Time:    batch.TS,
			Type:    "SIGNAL_DROPPED",
			Message: err.Error(),
			Data:    map[string]interface{}{"side": string(sig.Side), "signal_time": sig.SignalTime},
		}))
		return
	}
	if pos == nil {
		return
	}

	res.Entered = pos
	b.record(ctx, "record open", b.rec.RecordOpen(ctx, *pos))
	b.record(ctx, "record event", b.rec.RecordEvent(ctx, execution.Event{
		Time:    pos.EntryTime,
		Type:    "ENTRY",
		Message: "position opened at next candle open",
		Data: map[string]interface{}{
			"order_id": pos.OrderID, "side": string(pos.Side), "strike": pos.Strike,
			"entry": pos.EntryPrice, "sl": pos.SL, "tp1": pos.TP1,
		},
	}))
	b.notify(entryAlert(*pos))
	b.publish(UpdateTrade, pos.EntryTime, TradeUpdate{Event: "ENTRY", Position: *pos})
}

// manageExits steps every open position through this candle and reports
// whether any of them closed.
func (b *Bot) manageExits(ctx context.Context, batch model.Batch, res *CycleResult) bool {
	nifty := indicator.Snapshot{}
	nifty.Close, nifty.EMA, nifty.MACDHist = math.NaN(), math.NaN(), math.NaN()
	if b.niftyAt(batch.TS) {
		nifty, _ = b.buf.Snapshot(model.TagNifty)
	}

	closed := false
	for _, pos := range b.ledger.OpenPositions() {
		bar, ok := b.legBar(batch, pos.Side)
		if !ok {
			log.Printf("[bot] %s: no %s candle at %s, exits skipped",
				pos.OrderID, pos.Side.Leg(), batch.TS.Format("15:04"))
			continue
		}

		step := b.ledger.Step(pos.OrderID, execution.ExitInputs{
			At:          batch.TS,
			OptionClose: bar.Close,
			OptionHigh:  bar.High,
			OptionATR:   bar.ATR,
			NiftyClose:  nifty.Close,
			EMA:         nifty.EMA,
			MACDHist:    nifty.MACDHist,
		})
		if step.Skipped {
			continue
		}
		if step.TP1Hit {
			res.TP1 = append(res.TP1, pos.OrderID)
			b.record(ctx, "record event", b.rec.RecordEvent(ctx, execution.Event{
				Time:    batch.TS,
				Type:    "TP1_HIT",
				Message: "TP1 reached",
				Data: map[string]interface{}{
					"order_id": pos.OrderID, "tp1": step.Position.TP1,
					"high": bar.High, "sl": step.SL,
				},
			}))
			b.notify(tp1Alert(step.Position, batch.TS))
			b.publish(UpdateTrade, batch.TS, TradeUpdate{Event: "TP1_HIT", Position: step.Position})
		}
		if step.Closed != nil {
			closed = true
			res.Closed = append(res.Closed, *step.Closed)
			b.onClosed(ctx, *step.Closed)
		}
	}
	return closed
}

func (b *Bot) onClosed(ctx context.Context, c execution.ClosedPosition) {
	b.record(ctx, "record close", b.rec.RecordClose(ctx, c))
	if b.prom != nil {
		b.prom.TradesTotal.WithLabelValues(c.ExitReason).Inc()
		b.prom.TradePnL.Observe(c.PnLINR)
	}
	b.notify(exitAlert(c))
	b.publish(UpdateTrade, c.ExitTime, TradeUpdate{Event: "EXIT", Position: c.Position, Closed: &c})
}

func (b *Bot) scan(ctx context.Context, batch model.Batch, res *CycleResult) {
	if ok, reason := b.risk.CanTrade(); !ok {
		res.Blocked = reason
		return
	}

	history := b.buf.History(model.TagNifty)
	side := b.eval.Evaluate(history, len(history)-1)
	if !side.Valid() {
		return
	}
	row := history[len(history)-1]

	if err := b.queue.Enqueue(execution.PendingSignal{
		Side:       side,
		SignalTime: batch.TS,
		NiftyClose: row.Close,
	}); err != nil {
		log.Printf("[bot] signal %s not queued: %v", side, err)
		return
	}
	res.Signal = side

	ltp := math.NaN()
	if c, ok := batch.Get(side.Leg()); ok {
		ltp = c.Close
	}
	b.record(ctx, "record signal", b.rec.RecordSignal(ctx, execution.SignalRecord{
		Time:       batch.TS,
		Side:       side,
		NiftyClose: row.Close,
		EMA:        row.EMA,
		MACDHist:   row.MACDHist,
		Chop:       row.Chop,
		OptionLTP:  ltp,
		Strike:     b.strike,
	}))
	if b.prom != nil {
		b.prom.SignalsTotal.WithLabelValues(string(side)).Inc()
	}
	b.slog.Info("signal queued", append(logger.LogWithTrace(ctx),
		slog.String("side", string(side)),
		slog.Float64("nifty", row.Close),
		slog.Float64("vi_plus", row.VIPlus),
		slog.Float64("vi_minus", row.VIMinus),
		slog.Float64("ema", row.EMA),
	)...)
	b.publish(UpdateSignal, batch.TS, SignalUpdate{
		Side: side, SignalTime: batch.TS, NiftyClose: row.Close,
		Strike: b.strike, OptionLTP: num(ltp),
	})
}

func (b *Bot) record(ctx context.Context, what string, err error) {
	if err != nil {
		b.slog.Warn(what+" failed", append(logger.LogWithTrace(ctx), slog.Any("error", err))...)
	}
}

func (b *Bot) notify(a notification.Alert) {
	if b.alerts != nil {
		b.alerts.Notify(a)
	}
}

func (b *Bot) publish(kind string, at time.Time, data any) {
	if b.updates != nil {
		b.updates.Publish(Update{Kind: kind, Time: at, Data: data})
	}
}

func (b *Bot) state(blocked string) string {
	switch {
	case b.stopped:
		return StateStopped
	case b.ledger.HasOpen():
		return StateInPosition
	case b.queue.HasPending():
		return StatePending
	case blocked != "":
		return StateBlocked
	}
	if st, ok := b.buf.Status()[model.TagNifty]; !ok || !st.Ready {
		return StateWarming
	}
	return StateScanning
}

func (b *Bot) publishStatus(at time.Time, blocked string) {
	st := Status{
		Time:    at,
		Preset:  b.params.Name,
		State:   b.state(blocked),
		Reason:  blocked,
		Strike:  b.strike,
		Prices:  make(map[model.Tag]float64, len(b.prices)),
		Open:    b.ledger.OpenPositions(),
		Stats:   b.ledger.Stats(),
		Buffers: b.buf.Status(),
		Risk:    b.risk.Status(),
	}
	for tag, p := range b.prices {
		st.Prices[tag] = p
	}
	if snap, ok := b.buf.Snapshot(model.TagNifty); ok {
		st.Nifty = indicatorsOf(snap)
	}
	if sig, ok := b.queue.Pending(); ok {
		st.Pending = &sig
	}

	if b.prom != nil {
		b.prom.RealizedPnL.Set(st.Stats.Realized)
		b.prom.UnrealizedPnL.Set(st.Stats.Unrealized)
		b.prom.OpenPositions.Set(float64(len(st.Open)))
		b.prom.PendingSignals.Set(boolFloat(st.Pending != nil))
		b.prom.RiskBlocked.Set(boolFloat(blocked != ""))
	}

	b.mu.Lock()
	b.status = st
	b.mu.Unlock()
	b.publish(UpdateStatus, at, st)
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
