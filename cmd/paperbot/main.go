// paperbot is the NIFTY options paper-trading bot.
//
// Usage:
//
//	paperbot run                       # live session via Angel One polling
//	paperbot replay --days 3 --speed 0 # replay stored candles
//	paperbot replay --source csv --nifty nifty.csv --options options.csv
//	paperbot warmup --days 10          # download history into SQLite
//	paperbot resolve                   # print today's ATM contracts
//	paperbot presets                   # list strategy parameter sets
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	root := &cobra.Command{
		Use:           "paperbot",
		Short:         "NIFTY options paper-trading bot (Strategy V30)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./niftybot.yaml if present)")

	root.AddCommand(runCmd(), replayCmd(), warmupCmd(), resolveCmd(), presetsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paperbot:", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
