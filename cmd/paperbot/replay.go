package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"niftybot/internal/feed"
	"niftybot/internal/markethours"
	sqlitestore "niftybot/internal/store/sqlite"
)

func replayCmd() *cobra.Command {
	var (
		source      string
		dbPath      string
		niftyCSV    string
		optionsCSV  string
		days        int
		from, to    string
		speed       float64
		withServers bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay stored candles through the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := feed.ReplayConfig{Days: days, Speed: speed}
			var err error
			if rc.From, err = parseDate(from); err != nil {
				return err
			}
			if rc.To, err = parseDate(to); err != nil {
				return err
			}
			if !rc.To.IsZero() {
				rc.To = rc.To.AddDate(0, 0, 1)
			}

			a, err := newApp(appOptions{source: source + "-replay", day: time.Now()})
			if err != nil {
				return err
			}
			defer a.Close()
			rc.WarmupDays = a.cfg.WarmupDays

			var src feed.Source
			switch source {
			case "sqlite":
				if dbPath == "" {
					dbPath = a.cfg.SQLitePath
				}
				reader, err := sqlitestore.NewReader(dbPath)
				if err != nil {
					return err
				}
				defer reader.Close()
				src = feed.NewSQLiteSource(reader, rc)
			case "csv":
				if niftyCSV == "" || optionsCSV == "" {
					return fmt.Errorf("--nifty and --options are required with --source csv")
				}
				if src, err = feed.NewCSVSource(niftyCSV, optionsCSV, rc); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown source %q (sqlite|csv)", source)
			}

			ctx, stop := signalContext()
			defer stop()

			bot := a.newBot()
			if withServers {
				a.serve(ctx, bot, true)
			}
			// no state store: a same-day snapshot would mark the replayed
			// candles as already seen
			return a.session(ctx, bot, src, nil)
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "sqlite", "candle source: sqlite|csv")
	f.StringVar(&dbPath, "db", "", "SQLite candle database (default SQLITE_PATH)")
	f.StringVar(&niftyCSV, "nifty", "", "NIFTY candles CSV (csv source)")
	f.StringVar(&optionsCSV, "options", "", "CE/PE candles CSV (csv source)")
	f.IntVar(&days, "days", 1, "replay the last N stored trading days")
	f.StringVar(&from, "from", "", "first day to replay, YYYY-MM-DD (overrides --days)")
	f.StringVar(&to, "to", "", "last day to replay, YYYY-MM-DD")
	f.Float64Var(&speed, "speed", 0, "playback speed (0=max, 1=real time, 60=60x)")
	f.BoolVar(&withServers, "serve", false, "serve metrics and the dashboard during the replay")
	return cmd
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, markethours.IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}
