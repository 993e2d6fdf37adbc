// Package feed produces the trading loop's input: timestamp-aligned candle
// batches from a live broker poll, a SQLite history replay, or CSV files.
package feed

import (
	"context"
	"errors"

	"niftybot/internal/model"
)

// ErrNoCandles is returned when a source has nothing to warm up or replay.
var ErrNoCandles = errors.New("feed: no candles")

// Source is anything that can seed indicator history and then stream events.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Warmup returns history batches used to fill indicator buffers before
	// trading starts. No signals are taken on them.
	Warmup(ctx context.Context) ([]model.Batch, error)

	// Run sends events to out until the source is exhausted (nil) or ctx
	// is cancelled (ctx.Err()). It does not close out.
	Run(ctx context.Context, out chan<- model.Event) error
}

// send delivers ev unless ctx is cancelled first.
func send(ctx context.Context, out chan<- model.Event, ev model.Event) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
