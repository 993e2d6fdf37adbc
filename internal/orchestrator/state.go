package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"niftybot/internal/execution"
	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

const stateVersion = 1

// BotState is the persisted session: ledger contents, the pending signal
// and the last prices seen.
type BotState struct {
	Version    int                      `json:"version"`
	Preset     string                   `json:"preset"`
	Day        string                   `json:"day"`
	SavedAt    time.Time                `json:"saved_at"`
	LastCandle time.Time                `json:"last_candle"`
	Strike     int                      `json:"strike,omitempty"`
	Prices     map[model.Tag]float64    `json:"prices,omitempty"`
	Ledger     execution.LedgerState    `json:"ledger"`
	Pending    *execution.PendingSignal `json:"pending,omitempty"`
}

// State snapshots the bot for persistence.
func (b *Bot) State() BotState {
	st := BotState{
		Version:    stateVersion,
		Preset:     b.params.Name,
		SavedAt:    b.now(),
		LastCandle: b.lastCandle,
		Strike:     b.strike,
		Prices:     make(map[model.Tag]float64, len(b.prices)),
		Ledger:     b.ledger.State(),
	}
	if !b.lastCandle.IsZero() {
		st.Day = markethours.TradingDay(b.lastCandle)
	}
	for tag, p := range b.prices {
		st.Prices[tag] = p
	}
	if sig, ok := b.queue.Pending(); ok {
		st.Pending = &sig
	}
	return st
}

// Restore loads st into a freshly built bot. The indicator buffer is not
// part of the state; it is rebuilt from warm-up candles.
func (b *Bot) Restore(st BotState) error {
	if st.Version != stateVersion {
		return fmt.Errorf("restore: unsupported state version %d", st.Version)
	}
	if st.Preset != "" && st.Preset != b.params.Name {
		return fmt.Errorf("restore: state was saved by preset %q, running %q", st.Preset, b.params.Name)
	}
	if err := b.ledger.Restore(st.Ledger); err != nil {
		return err
	}
	b.queue.Restore(st.Pending)
	b.lastCandle = st.LastCandle
	b.strike = st.Strike
	for tag, p := range st.Prices {
		b.prices[tag] = p
	}
	log.Printf("[bot] restored state from %s: %d open, %d closed, pending=%v",
		st.SavedAt.Format(time.RFC3339), len(st.Ledger.Open), len(st.Ledger.Closed), st.Pending != nil)
	return nil
}

// SaveState writes the bot state to store as JSON.
func (b *Bot) SaveState(ctx context.Context, store model.StateStore) error {
	data, err := json.Marshal(b.State())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := store.SaveState(ctx, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState restores from store. Nothing saved, or a state from another
// trading day, leaves the bot empty and returns false.
func (b *Bot) LoadState(ctx context.Context, store model.StateStore, today time.Time) (bool, error) {
	data, err := store.LoadState(ctx)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	var st BotState
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("decode state: %w", err)
	}
	if st.Day != "" && st.Day != markethours.TradingDay(today) {
		log.Printf("[bot] ignoring saved state from %s", st.Day)
		return false, nil
	}
	if err := b.Restore(st); err != nil {
		return false, err
	}
	return true, nil
}
