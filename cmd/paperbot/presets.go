package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"niftybot/internal/strategy"
)

func presetsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the strategy parameter presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []strategy.Params
			for _, name := range strategy.PresetNames() {
				p, err := strategy.ParamsByName(name)
				if err != nil {
					return err
				}
				list = append(list, p)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PRESET\tSL×ATR\tMAX SL\tTP1\tTRAIL\tCHOP\tENTRY\tEOD\tCOST")
			for _, p := range list {
				chop := "off"
				if p.ChopGate {
					op := ">"
					if p.ChopInclusive {
						op = ">="
					}
					chop = fmt.Sprintf("%s%.0f", op, p.ChopThreshold)
				}
				trail := fmt.Sprintf("lock+%.0f", p.LockPoints)
				if p.Trail == strategy.TrailATR {
					trail = fmt.Sprintf("atr×%.1f", p.TrailATRMultiplier)
				}
				fmt.Fprintf(tw, "%s\t%.1f\t%.2f\t%.0f\t%s\t%s\t%s-%s\t%s\t%.2f\n",
					p.Name, p.SLMultiplier, p.MaxSLPoints, p.TP1Points, trail, chop,
					p.EntryStart, p.EntryEnd, p.EODExit, p.CostPerTrade)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
