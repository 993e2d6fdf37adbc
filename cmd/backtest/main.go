// cmd/backtest replays stored 5-minute candles from SQLite through the
// trading bot and prints the closed trades and the session summary.
//
// Usage:
//
//	go run ./cmd/backtest --days=5 --preset=V30
//	go run ./cmd/backtest --from=2026-03-02 --to=2026-03-06 --trail=atr
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"niftybot/internal/execution"
	"niftybot/internal/feed"
	"niftybot/internal/indicator"
	"niftybot/internal/logger"
	"niftybot/internal/markethours"
	"niftybot/internal/orchestrator"
	"niftybot/internal/portfolio"
	sqlitestore "niftybot/internal/store/sqlite"
	"niftybot/internal/strategy"
	"niftybot/internal/tradelog"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	preset := flag.String("preset", "V30", "Strategy preset ("+strings.Join(strategy.PresetNames(), ", ")+")")
	trail := flag.String("trail", "", "Trail policy override: lock|atr")
	chop := flag.String("chop", "", "Choppiness gate override: on|off")
	days := flag.Int("days", 1, "Replay the last N stored trading days")
	fromDay := flag.String("from", "", "First day to replay, YYYY-MM-DD (overrides --days)")
	toDay := flag.String("to", "", "Last day to replay, YYYY-MM-DD")
	warmupDays := flag.Int("warmup-days", 5, "Stored trading days used to warm up indicators")
	maxLoss := flag.Float64("max-daily-loss", 0, "Daily loss limit in INR (0=off)")
	outDir := flag.String("out", "backtest_out", "Directory for the trade log files")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	params, err := buildParams(*preset, *trail, *chop)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	rc := feed.ReplayConfig{Days: *days, WarmupDays: *warmupDays}
	if rc.From, err = parseDay(*fromDay); err != nil {
		log.Fatalf("[backtest] --from: %v", err)
	}
	if rc.To, err = parseDay(*toDay); err != nil {
		log.Fatalf("[backtest] --to: %v", err)
	}
	if !rc.To.IsZero() {
		rc.To = rc.To.AddDate(0, 0, 1)
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	tlog, err := tradelog.New(*outDir, time.Now())
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	tlog.SetTitle("NIFTY BACKTEST - " + params.Name)

	level := logger.ParseLevel("warn")
	if *verbose {
		level = logger.ParseLevel("debug")
	}

	bufCfg := indicator.DefaultBufferConfig()
	bufCfg.Nifty = params.NiftyPeriods()
	bot := orchestrator.New(orchestrator.Config{
		Params: params,
		Buffer: bufCfg,
		Risk:   portfolio.RiskLimits{MaxDailyLoss: *maxLoss},
	}, orchestrator.Deps{
		Recorder: tlog,
		Logger:   logger.Init("backtest", level),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var stats portfolio.Summary
	runner := orchestrator.NewRunner(bot, orchestrator.RunnerConfig{
		Source: feed.NewSQLiteSource(reader, rc),
		OnStop: func(_ context.Context, b *orchestrator.Bot, _ []execution.ClosedPosition) {
			stats = b.Ledger().LifetimeStats()
		},
	})
	start := time.Now()
	if err := runner.Run(ctx); err != nil {
		log.Fatalf("[backtest] replay failed: %v", err)
	}

	closed := bot.Ledger().Closed()
	if len(closed) > 0 {
		fmt.Println()
		fmt.Printf("%-9s %-7s %-11s %-6s %8s %8s %-14s %10s\n",
			"ORDER", "SIDE", "ENTRY", "EXIT", "IN", "OUT", "REASON", "P&L INR")
		for _, c := range closed {
			fmt.Printf("%-9s %-7s %-11s %-6s %8.2f %8.2f %-14s %10.2f\n",
				c.OrderID, c.Side, c.EntryTime.In(markethours.IST).Format("01-02 15:04"),
				c.ExitTime.In(markethours.IST).Format("15:04"),
				c.EntryPrice, c.ExitPrice, c.ExitReason, c.PnLINR)
		}
	}

	summary, err := tlog.SaveAll(stats)
	if err != nil {
		log.Printf("[backtest] trade log: %v", err)
	}
	fmt.Println()
	fmt.Print(summary)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Preset:            %-16s ║\n", params.Name)
	fmt.Printf("║  Trades:            %-16d ║\n", stats.TotalTrades)
	fmt.Printf("║  Win rate:          %-16s ║\n", fmt.Sprintf("%.1f%%", stats.WinRate))
	fmt.Printf("║  Realized INR:      %-16.2f ║\n", stats.Realized)
	fmt.Printf("║  Elapsed:           %-16s ║\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}

func buildParams(preset, trail, chop string) (strategy.Params, error) {
	p, err := strategy.ParamsByName(preset)
	if err != nil {
		return p, err
	}
	if trail != "" {
		if p.Trail, err = strategy.ParseTrailPolicy(trail); err != nil {
			return p, err
		}
	}
	switch strings.ToLower(chop) {
	case "":
	case "on":
		p.ChopGate = true
	case "off":
		p.ChopGate = false
	default:
		return p, fmt.Errorf("--chop must be on or off, got %q", chop)
	}
	return p, p.Validate()
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", s, markethours.IST)
}
