package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"niftybot/config"
	"niftybot/internal/broker"
	"niftybot/internal/markethours"
	"niftybot/internal/model"
	sqlitestore "niftybot/internal/store/sqlite"
)

func warmupCmd() *cobra.Command {
	var (
		days     int
		keepDays int
	)
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Download recent 5-minute NIFTY and ATM option candles into SQLite",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.RequireBroker(); err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := login(ctx, cfg)
			if err != nil {
				return err
			}
			inst, err := resolveATM(ctx, client, cfg.StrikeStep)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return err
			}
			w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
			if err != nil {
				return err
			}
			defer w.Close()

			legs := map[model.Tag]broker.Instrument{
				model.TagNifty: niftyIndex,
				model.TagCE:    inst.CE,
				model.TagPE:    inst.PE,
			}
			if err := download(ctx, client, w, legs, inst.Strike, days); err != nil {
				return err
			}

			if keepDays > 0 {
				cutoff := markethours.PreviousTradingDays(time.Now(), keepDays)
				before := markethours.NSE.Open.On(cutoff[len(cutoff)-1])
				n, err := w.Prune(before)
				if err != nil {
					return fmt.Errorf("prune: %w", err)
				}
				log.Printf("[warmup] pruned %d candles before %s", n, before.Format("2006-01-02"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 5, "trading days of history to fetch")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "delete candles older than N trading days (0 keeps all)")
	return cmd
}

// download fetches each leg from its last stored candle (or days back) up to
// the last closed candle and writes it.
func download(ctx context.Context, api *broker.Client, w *sqlitestore.Writer, legs map[model.Tag]broker.Instrument, strike, days int) error {
	if days < 1 {
		days = 1
	}
	now := time.Now().In(markethours.IST)
	back := markethours.PreviousTradingDays(now, days)
	start := markethours.NSE.Open.On(back[len(back)-1])
	to := markethours.CandleStart(now)

	var out model.CandleWriter = w
	for _, tag := range model.Tags {
		inst := legs[tag]
		from := start
		if last, err := w.LastTimestamp(tag); err == nil && last.After(from) {
			from = last.Add(markethours.CandleInterval)
		}
		if !from.Before(to) {
			log.Printf("[warmup] %s already up to date", tag)
			continue
		}

		candles, err := api.Candles(ctx, broker.CandleRequest{Instrument: inst, From: from, To: to})
		if err != nil {
			return fmt.Errorf("fetch %s: %w", tag, err)
		}
		kept := candles[:0]
		for _, c := range candles {
			if !c.TS.Before(to) {
				continue // still forming
			}
			c.Tag = tag
			if c.Symbol == "" {
				c.Symbol = inst.Symbol
			}
			if tag != model.TagNifty {
				c.Strike = strike
			}
			kept = append(kept, c)
		}
		if err := out.WriteCandles(ctx, kept); err != nil {
			return fmt.Errorf("store %s: %w", tag, err)
		}
		log.Printf("[warmup] %s (%s): %d candles since %s", tag, inst.Symbol, len(kept), from.Format("2006-01-02 15:04"))
	}
	return nil
}
