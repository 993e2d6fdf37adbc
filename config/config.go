package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"niftybot/internal/indicator"
	"niftybot/internal/portfolio"
	"niftybot/internal/strategy"
)

// Config holds all application configuration. Values come from defaults,
// an optional YAML file, a .env file and the environment, in increasing
// order of precedence. Environment variable names are the upper-cased keys,
// e.g. ANGEL_API_KEY or STRATEGY_PRESET.
type Config struct {
	// Angel One credentials
	AngelAPIKey     string `mapstructure:"angel_api_key"`
	AngelClientCode string `mapstructure:"angel_client_code"`
	AngelPassword   string `mapstructure:"angel_password"`
	AngelTOTPSecret string `mapstructure:"angel_totp_secret"`

	// Infrastructure
	RedisEnabled  bool   `mapstructure:"redis_enabled"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	JournalPath   string `mapstructure:"journal_path"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
	DashboardAddr string `mapstructure:"dashboard_addr"`
	TradeLogDir   string `mapstructure:"trade_log_dir"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Strategy
	StrategyPreset string `mapstructure:"strategy_preset"`
	TrailPolicy    string `mapstructure:"trail_policy"` // empty keeps the preset's policy
	ChopGate       string `mapstructure:"chop_gate"`    // empty keeps the preset's gate

	// Indicator warm-up
	BufferSize       int `mapstructure:"buffer_size"`
	WarmupCandles    int `mapstructure:"warmup_candles"`
	MinSameDay       int `mapstructure:"min_same_day"`
	MinOptionCandles int `mapstructure:"min_option_candles"`
	WarmupDays       int `mapstructure:"warmup_days"`

	// Live session
	Instrument   string `mapstructure:"instrument"`
	StrikeStep   int    `mapstructure:"strike_step"`
	TickInterval int    `mapstructure:"tick_interval"` // seconds between LTP polls, 0 disables

	// Alerts
	TelegramToken  string `mapstructure:"telegram_bot_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	WebhookURL     string `mapstructure:"webhook_url"`

	// Risk
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"`
	MaxTradesPerDay int     `mapstructure:"max_trades_per_day"`
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"angel_api_key":     "",
		"angel_client_code": "",
		"angel_password":    "",
		"angel_totp_secret": "",

		"redis_enabled":  false,
		"redis_addr":     "localhost:6379",
		"redis_password": "",
		"redis_db":       0,
		"redis_prefix":   "niftybot",
		"sqlite_path":    "data/candles.db",
		"journal_path":   "data/journal.db",
		"metrics_addr":   ":9090",
		"dashboard_addr": ":8080",
		"trade_log_dir":  "logs",

		"log_level": "info",
		"log_file":  "",

		"strategy_preset": "V30",
		"trail_policy":    "",
		"chop_gate":       "",

		"buffer_size":        500,
		"warmup_candles":     50,
		"min_same_day":       13,
		"min_option_candles": 10,
		"warmup_days":        5,

		"instrument":    "NIFTY",
		"strike_step":   50,
		"tick_interval": 15,

		"telegram_bot_token": "",
		"telegram_chat_id":   "",
		"webhook_url":        "",

		"max_daily_loss":     0,
		"max_trades_per_day": 0,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads configuration. path names a YAML file; when empty, an optional
// niftybot.yaml in the working directory is used if present. A .env file in
// the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		log.Printf("[config] loaded %s", path)
	} else {
		v.SetConfigName("niftybot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Instrument = strings.ToUpper(strings.TrimSpace(cfg.Instrument))
	return &cfg, nil
}

// RequireBroker reports missing broker credentials. Only commands that talk
// to the broker call it.
func (c *Config) RequireBroker() error {
	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"ANGEL_API_KEY", c.AngelAPIKey},
		{"ANGEL_CLIENT_CODE", c.AngelClientCode},
		{"ANGEL_PASSWORD", c.AngelPassword},
		{"ANGEL_TOTP_SECRET", c.AngelTOTPSecret},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: required env vars not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// StrategyParams resolves the preset and applies the trail and chop
// overrides.
func (c *Config) StrategyParams() (strategy.Params, error) {
	p, err := strategy.ParamsByName(c.StrategyPreset)
	if err != nil {
		return strategy.Params{}, err
	}
	if c.TrailPolicy != "" {
		tp, err := strategy.ParseTrailPolicy(c.TrailPolicy)
		if err != nil {
			return strategy.Params{}, err
		}
		p.Trail = tp
	}
	if c.ChopGate != "" {
		on, err := parseSwitch(c.ChopGate)
		if err != nil {
			return strategy.Params{}, fmt.Errorf("config: CHOP_GATE: %w", err)
		}
		p.ChopGate = on
	}
	if err := p.Validate(); err != nil {
		return strategy.Params{}, err
	}
	return p, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// BufferConfig sizes the indicator windows for p. Non-positive values fall
// back to the defaults.
func (c *Config) BufferConfig(p strategy.Params) indicator.BufferConfig {
	bc := indicator.DefaultBufferConfig()
	if c.BufferSize > 0 {
		bc.Capacity = c.BufferSize
	}
	if c.WarmupCandles > 0 {
		bc.MinCandles = c.WarmupCandles
	}
	if c.MinSameDay > 0 {
		bc.MinSameDay = c.MinSameDay
	}
	if c.MinOptionCandles > 0 {
		bc.MinOptionCandles = c.MinOptionCandles
	}
	bc.Nifty = p.NiftyPeriods()
	return bc
}

// RiskLimits returns the day-level limits.
func (c *Config) RiskLimits() portfolio.RiskLimits {
	return portfolio.RiskLimits{MaxDailyLoss: c.MaxDailyLoss, MaxTradesPerDay: c.MaxTradesPerDay}
}

// TickEvery returns the LTP poll interval.
func (c *Config) TickEvery() time.Duration {
	return time.Duration(c.TickInterval) * time.Second
}
