package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"niftybot/config"
	"niftybot/internal/resolver"
)

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the contracts the configured instrument trades today",
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

			out := cmd.OutOrStdout()
			if cfg.Instrument == "NIFTY" {
				inst, err := resolveATM(ctx, client, cfg.StrikeStep)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "strike  %d\nexpiry  %s\nCE      %s (%s)\nPE      %s (%s)\n",
					inst.Strike, inst.Expiry.Format("2006-01-02"),
					inst.CE.Symbol, inst.CE.Token, inst.PE.Symbol, inst.PE.Token)
				return nil
			}

			fut, err := resolver.NewCommodityResolver(client).Resolve(ctx, cfg.Instrument)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "future  %s (%s)\nexpiry  %s\nlot     %d\n",
				fut.Instrument.Symbol, fut.Instrument.Token, fut.Expiry.Format("2006-01-02"), fut.LotSize)
			return nil
		},
	}
}
