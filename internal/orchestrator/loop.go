package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"niftybot/internal/execution"
	"niftybot/internal/feed"
	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// DefaultQueueSize bounds the event queue between the feed and the bot.
const DefaultQueueSize = 256

// RunnerConfig wires a Bot to its feed and persistence.
type RunnerConfig struct {
	Source    feed.Source
	State     model.StateStore // optional
	QueueSize int

	// OnStart runs after warm-up and state restore, before the first event.
	OnStart func(ctx context.Context, b *Bot)
	// OnStop runs after the forced close and state save.
	OnStop func(ctx context.Context, b *Bot, forced []execution.ClosedPosition)
	// OnFeed reports whether the feed goroutine is running.
	OnFeed func(running bool)

	ShutdownTimeout time.Duration
}

// Runner is the single consumer of the event queue. Everything that
// touches trading state happens on the goroutine that calls Run.
type Runner struct {
	bot *Bot
	cfg RunnerConfig
}

// NewRunner creates a runner for bot.
func NewRunner(bot *Bot, cfg RunnerConfig) *Runner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Runner{bot: bot, cfg: cfg}
}

// Run warms the bot up, consumes events until the source finishes or ctx
// is cancelled, then force-closes open positions and persists state.
// The returned error is the source's failure, if any.
func (r *Runner) Run(ctx context.Context) error {
	src := r.cfg.Source
	log.Printf("[runner] starting with source %s, preset %s", src.Name(), r.bot.Params().Name)

	warm, err := src.Warmup(ctx)
	if err != nil {
		return fmt.Errorf("warm-up from %s: %w", src.Name(), err)
	}
	r.bot.Warmup(warm)

	if r.cfg.State != nil {
		today := r.bot.now()
		if last := r.bot.LastCandle(); !last.IsZero() {
			today = last
		}
		if _, err := r.bot.LoadState(ctx, r.cfg.State, today); err != nil {
			log.Printf("[runner] state restore skipped: %v", err)
		}
	}
	if r.cfg.OnStart != nil {
		r.cfg.OnStart(ctx, r.bot)
	}

	events := make(chan model.Event, r.cfg.QueueSize)
	srcDone := make(chan error, 1)
	r.feed(true)
	go func() {
		srcDone <- src.Run(ctx, events)
	}()

	var srcErr error
loop:
	for {
		select {
		case ev := <-events:
			r.bot.Handle(ctx, ev)
		case srcErr = <-srcDone:
			r.drain(ctx, events)
			break loop
		case <-ctx.Done():
			srcErr = <-srcDone
			break loop
		}
	}
	r.feed(false)
	if srcErr != nil && ctx.Err() == nil {
		log.Printf("[runner] source %s failed: %v", src.Name(), srcErr)
	}

	r.shutdown()
	if ctx.Err() != nil {
		return nil
	}
	return srcErr
}

// drain handles events the source queued before it returned.
func (r *Runner) drain(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case ev := <-events:
			r.bot.Handle(ctx, ev)
		default:
			return
		}
	}
}

func (r *Runner) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()

	at := time.Now()
	if last := r.bot.LastCandle(); !last.IsZero() {
		at = last.Add(markethours.CandleInterval)
	}
	forced := r.bot.Shutdown(ctx, at)

	if r.cfg.State != nil {
		if err := r.bot.SaveState(ctx, r.cfg.State); err != nil {
			log.Printf("[runner] %v", err)
		} else {
			log.Printf("[runner] state saved")
		}
	}
	if r.cfg.OnStop != nil {
		r.cfg.OnStop(ctx, r.bot, forced)
	}
	log.Printf("[runner] shutdown complete")
}

func (r *Runner) feed(running bool) {
	if r.cfg.OnFeed != nil {
		r.cfg.OnFeed(running)
	}
}
