// Package metrics exposes the bot's Prometheus metrics and the /healthz probe.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the paper-trading bot.
type Metrics struct {
	CandlesTotal   *prometheus.CounterVec // labels: tag
	BatchesTotal   prometheus.Counter
	TicksTotal     prometheus.Counter
	DroppedCandles prometheus.Counter
	CandleLag      prometheus.Gauge

	// Indicator pipeline
	IndicatorComputeDur prometheus.Histogram
	IndicatorReady      *prometheus.GaugeVec // labels: tag

	// Strategy and execution
	SignalsTotal    *prometheus.CounterVec // labels: side
	SignalsRejected *prometheus.CounterVec // labels: reason
	TradesTotal     *prometheus.CounterVec // labels: reason
	TradePnL        prometheus.Histogram
	RealizedPnL     prometheus.Gauge
	UnrealizedPnL   prometheus.Gauge
	OpenPositions   prometheus.Gauge
	PendingSignals  prometheus.Gauge
	RiskBlocked     prometheus.Gauge

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Backpressure
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	// Market session
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "niftybot_candles_total",
			Help: "Closed 5-minute candles ingested, by instrument tag",
		}, []string{"tag"}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "niftybot_batches_total",
			Help: "Candle batches processed by the trading loop",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "niftybot_ticks_total",
			Help: "Intra-candle price updates received",
		}),
		DroppedCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "niftybot_dropped_candles_total",
			Help: "Candles dropped because they arrived out of order",
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_candle_lag_seconds",
			Help: "Lag between candle close and processing time",
		}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "niftybot_indicator_compute_duration_seconds",
			Help:    "Indicator recompute latency per batch",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		IndicatorReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "niftybot_indicator_ready",
			Help: "Whether the tag's indicators passed the warm-up gates (0/1)",
		}, []string{"tag"}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "niftybot_signals_total",
			Help: "Entry signals queued, by side",
		}, []string{"side"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "niftybot_signals_rejected_total",
			Help: "Signals not executed, by reason",
		}, []string{"reason"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "niftybot_trades_total",
			Help: "Closed paper trades, by exit reason",
		}, []string{"reason"}),
		TradePnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "niftybot_trade_pnl_inr",
			Help:    "Per-trade realized P&L in INR",
			Buckets: []float64{-2000, -1000, -500, -250, 0, 250, 500, 1000, 2000, 4000},
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_realized_pnl_inr",
			Help: "Realized P&L for the current trading day",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_unrealized_pnl_inr",
			Help: "Mark-to-market P&L of open positions",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_open_positions",
			Help: "Open paper positions (0 or 1)",
		}),
		PendingSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_pending_signals",
			Help: "Signals waiting for the next candle open (0 or 1)",
		}),
		RiskBlocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_risk_blocked",
			Help: "Whether daily risk limits are blocking new entries (0/1)",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "niftybot_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "niftybot_redis_buffered_writes_total",
			Help: "Publishes buffered locally while the Redis circuit was open",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "niftybot_fanout_drops_total",
			Help: "Updates dropped by the fan-out bus",
		}, []string{"subscriber"}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "niftybot_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.BatchesTotal,
		m.TicksTotal,
		m.DroppedCandles,
		m.CandleLag,
		m.IndicatorComputeDur,
		m.IndicatorReady,
		m.SignalsTotal,
		m.SignalsRejected,
		m.TradesTotal,
		m.TradePnL,
		m.RealizedPnL,
		m.UnrealizedPnL,
		m.OpenPositions,
		m.PendingSignals,
		m.RiskBlocked,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.FanoutDropsTotal,
		m.MarketState,
	)

	return m
}

// ObserveBreaker records a circuit breaker transition (state 0/1/2).
func (m *Metrics) ObserveBreaker(state int, tripped bool) {
	m.RedisCircuitBreakerState.Set(float64(state))
	if tripped {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// SetReady records a tag's indicator readiness.
func (m *Metrics) SetReady(tag string, ready bool) {
	m.IndicatorReady.WithLabelValues(tag).Set(boolGauge(ready))
}
