package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the trading core from concrete stores (SQLite, Redis).

// CandleWriter persists closed candles for later warm-up and replay.
type CandleWriter interface {
	// WriteCandles upserts a batch of candles in one transaction.
	WriteCandles(ctx context.Context, candles []Candle) error

	// Close releases underlying resources.
	Close() error
}

// StateStore keeps the bot's serialized session state.
// Using []byte avoids an import cycle with the orchestrator.
type StateStore interface {
	// SaveState persists a JSON-encoded state document.
	SaveState(ctx context.Context, data []byte) error

	// LoadState returns the last saved document, or nil, nil if none exists.
	LoadState(ctx context.Context) ([]byte, error)
}
