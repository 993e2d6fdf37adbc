package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"niftybot/config"
	"niftybot/internal/execution"
	"niftybot/internal/feed"
	"niftybot/internal/gateway"
	"niftybot/internal/logger"
	"niftybot/internal/marketdata/bus"
	"niftybot/internal/markethours"
	"niftybot/internal/metrics"
	"niftybot/internal/model"
	"niftybot/internal/notification"
	"niftybot/internal/orchestrator"
	redisstore "niftybot/internal/store/redis"
	"niftybot/internal/strategy"
	"niftybot/internal/tradelog"
)

// app holds the collaborators shared by the run and replay commands.
type app struct {
	cfg    *config.Config
	params strategy.Params
	slog   *slog.Logger

	reg     *prometheus.Registry
	prom    *metrics.Metrics
	health  *metrics.HealthStatus
	updates *bus.FanOut[orchestrator.Update]

	journal *execution.Journal
	trades  *tradelog.Logger
	alerts  *notification.Dispatcher
	redis   *redisstore.Store

	closers []io.Closer
}

type appOptions struct {
	source string    // feed name for /healthz
	day    time.Time // trade log file date
	redis  bool      // connect Redis when enabled in config
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	params, err := cfg.StrategyParams()
	if err != nil {
		return nil, err
	}

	lg, logCloser, err := logger.New(logger.Config{
		Service: "paperbot",
		Level:   logger.ParseLevel(cfg.LogLevel),
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, params: params, slog: lg, closers: []io.Closer{logCloser}}

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.prom = metrics.NewMetrics(a.reg)
	a.health = metrics.NewHealthStatus(opts.source, params.Name)

	a.updates = bus.New[orchestrator.Update](512)
	a.updates.OnDrop = func(i int) {
		a.prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(i)).Inc()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	if a.journal, err = execution.NewJournal(cfg.JournalPath); err != nil {
		a.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}
	if a.trades, err = tradelog.New(cfg.TradeLogDir, opts.day); err != nil {
		a.Close()
		return nil, err
	}
	a.alerts = notification.NewDispatcher(a.notifier(), 64)

	if opts.redis && cfg.RedisEnabled {
		a.redis, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			log.Printf("[paperbot] WARNING: redis init failed: %v (continuing without redis)", err)
			a.redis = nil
		}
	}
	a.health.SetRedisEnabled(a.redis != nil)

	log.Printf("[paperbot] preset=%s trail=%s chop_gate=%v source=%s",
		params.Name, params.Trail, params.ChopGate, opts.source)
	return a, nil
}

func (a *app) notifier() notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if a.cfg.TelegramToken != "" && a.cfg.TelegramChatID != "" {
		n = append(n, notification.NewTelegramNotifier(a.cfg.TelegramToken, a.cfg.TelegramChatID))
	}
	if a.cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(a.cfg.WebhookURL))
	}
	return n
}

// newBot builds the trading core with every recorder and observer attached.
func (a *app) newBot() *orchestrator.Bot {
	return orchestrator.New(orchestrator.Config{
		Params: a.params,
		Buffer: a.cfg.BufferConfig(a.params),
		Risk:   a.cfg.RiskLimits(),
	}, orchestrator.Deps{
		Recorder: execution.Recorders{a.journal, a.trades},
		Alerts:   a.alerts,
		Metrics:  a.prom,
		Updates:  a.updates,
		Logger:   a.slog,
	})
}

// serve starts the metrics server, the dashboard and the Redis forwarder.
// They stop when ctx is cancelled.
func (a *app) serve(ctx context.Context, bot *orchestrator.Bot, dashboard bool) {
	srv := metrics.NewServer(a.cfg.MetricsAddr, a.health, a.reg)
	srv.Start()
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Stop(stopCtx)
	}()

	a.health.StartLivenessChecker(ctx, a.redisClient(), a.journal.DB(), 10*time.Second)
	go a.watchHealth(ctx, a.updates.Subscribe())
	go a.watchMarket(ctx)

	if a.redis != nil {
		pub := redisstore.NewPublisher(ctx, a.redis, 1000)
		pub.OnBuffer = func() { a.prom.RedisBufferedWrites.Inc() }
		cb := a.redis.Breaker()
		prev := cb.OnStateChange
		cb.OnStateChange = func(from, to redisstore.State) {
			if prev != nil {
				prev(from, to)
			}
			a.prom.ObserveBreaker(int(to), to == redisstore.StateOpen)
		}
		go orchestrator.ForwardUpdates(ctx, a.updates.Subscribe(), pub)
	}

	if dashboard && a.cfg.DashboardAddr != "" {
		a.startDashboard(ctx, bot)
	}
}

func (a *app) redisClient() *goredis.Client {
	if a.redis == nil {
		return nil
	}
	return a.redis.Client()
}

func (a *app) startDashboard(ctx context.Context, bot *orchestrator.Bot) {
	hub := gateway.NewHub(1000)
	go hub.Run(ctx, a.updates.Subscribe())
	go hub.StartMarketBroadcast(ctx, 5*time.Second)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, bot, a.journal, time.Now())
	srv := &http.Server{Addr: a.cfg.DashboardAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Printf("[paperbot] dashboard listening on %s", a.cfg.DashboardAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[paperbot] dashboard error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(stopCtx)
	}()
}

// watchHealth mirrors status updates into /healthz.
func (a *app) watchHealth(ctx context.Context, sub <-chan orchestrator.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub:
			if !ok {
				return
			}
			st, isStatus := u.Data.(orchestrator.Status)
			if !isStatus {
				continue
			}
			a.health.SetLastCandleTime(st.Time)
			a.health.SetIndicatorsReady(st.State != orchestrator.StateWarming)
		}
	}
}

func (a *app) watchMarket(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		a.prom.MarketState.Set(boolFloat(markethours.IsMarketOpen(time.Now())))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// session runs bot over src and writes the trade log when it ends.
func (a *app) session(ctx context.Context, bot *orchestrator.Bot, src feed.Source, state model.StateStore) error {
	runner := orchestrator.NewRunner(bot, orchestrator.RunnerConfig{
		Source: src,
		State:  state,
		OnFeed: a.health.SetFeedRunning,
		OnStop: func(ctx context.Context, b *orchestrator.Bot, forced []execution.ClosedPosition) {
			stats := b.Ledger().Stats()
			summary, err := a.trades.SaveAll(stats)
			if err != nil {
				log.Printf("[paperbot] trade log: %v", err)
			} else {
				fmt.Println(summary)
			}
			log.Printf("[paperbot] session done: trades=%d wins=%d losses=%d realized=%.2f INR forced=%d",
				stats.TotalTrades, stats.Winners, stats.Losers, stats.Realized, len(forced))
		},
	})
	return runner.Run(ctx)
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	if a.updates != nil {
		a.updates.Close()
	}
	if a.alerts != nil {
		a.alerts.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
