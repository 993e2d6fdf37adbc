package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"niftybot/config"
	"niftybot/internal/broker"
	"niftybot/internal/feed"
	"niftybot/internal/model"
	"niftybot/internal/resolver"
)

// niftyIndex is the underlying the strategy reads.
var niftyIndex = broker.Instrument{Exchange: broker.ExchangeNSE, Symbol: "Nifty 50", Token: broker.NiftyIndexToken}

func runCmd() *cobra.Command {
	var noDashboard bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade today's session live on paper",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{source: "live-poll", day: time.Now(), redis: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.RequireBroker(); err != nil {
				return err
			}
			if a.cfg.Instrument != "NIFTY" {
				return fmt.Errorf("live trading supports NIFTY options only, got %s (see `paperbot resolve`)", a.cfg.Instrument)
			}

			ctx, stop := signalContext()
			defer stop()

			client, err := login(ctx, a.cfg)
			if err != nil {
				return err
			}
			inst, err := resolveATM(ctx, client, a.cfg.StrikeStep)
			if err != nil {
				return err
			}

			poller, err := feed.NewLivePoller(client, feed.LiveConfig{
				Instruments: map[model.Tag]broker.Instrument{
					model.TagNifty: niftyIndex,
					model.TagCE:    inst.CE,
					model.TagPE:    inst.PE,
				},
				Strike:     inst.Strike,
				WarmupDays: a.cfg.WarmupDays,
				TickEvery:  a.cfg.TickEvery(),
			})
			if err != nil {
				return err
			}

			bot := a.newBot()
			a.serve(ctx, bot, !noDashboard)

			var state model.StateStore
			if a.redis != nil {
				state = a.redis
			}
			return a.session(ctx, bot, poller, state)
		},
	}
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not serve the dashboard")
	return cmd
}

// login opens a broker session and re-logs in when the token expires.
func login(ctx context.Context, cfg *config.Config) (*broker.Client, error) {
	client := broker.New(broker.Config{
		APIKey:     cfg.AngelAPIKey,
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	})
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	client.SessionExpiryHook = func() {
		go func() {
			if err := client.Refresh(ctx); err == nil {
				return
			}
			if err := client.Login(ctx); err != nil {
				log.Printf("[paperbot] re-login failed: %v", err)
			}
		}()
	}
	return client, nil
}

// resolveATM picks the option pair nearest to the current NIFTY spot.
func resolveATM(ctx context.Context, client *broker.Client, step int) (resolver.Instruments, error) {
	spot, err := client.LTP(ctx, niftyIndex)
	if err != nil {
		return resolver.Instruments{}, fmt.Errorf("nifty spot: %w", err)
	}
	return resolver.NewNiftyResolver(client).WithStrikeStep(step).Resolve(ctx, spot)
}
