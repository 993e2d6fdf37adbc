package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftybot/internal/strategy"
)

// inTempDir isolates the test from any .env or niftybot.yaml in the package.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "V30", cfg.StrategyPreset)
	assert.Equal(t, "NIFTY", cfg.Instrument)
	assert.Equal(t, "data/candles.db", cfg.SQLitePath)
	assert.Equal(t, 50, cfg.WarmupCandles)
	assert.Equal(t, 13, cfg.MinSameDay)
	assert.False(t, cfg.RedisEnabled)
	assert.Error(t, cfg.RequireBroker())
}

func TestLoadEnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("STRATEGY_PRESET", "v28")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("MAX_DAILY_LOSS", "2500")
	t.Setenv("INSTRUMENT", " crudeoil ")
	t.Setenv("ANGEL_API_KEY", "k")
	t.Setenv("ANGEL_CLIENT_CODE", "c")
	t.Setenv("ANGEL_PASSWORD", "p")
	t.Setenv("ANGEL_TOTP_SECRET", "JBSWY3DPEHPK3PXP")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "CRUDEOIL", cfg.Instrument)
	assert.Equal(t, 2500.0, cfg.RiskLimits().MaxDailyLoss)
	assert.NoError(t, cfg.RequireBroker())

	p, err := cfg.StrategyParams()
	require.NoError(t, err)
	assert.Equal(t, "V28", p.Name)
}

func TestLoadFileAndDotEnv(t *testing.T) {
	dir := inTempDir(t)
	yaml := "strategy_preset: V30_PHASE2\nbuffer_size: 300\nwarmup_candles: 40\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bot.yaml"), []byte(yaml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")
	t.Setenv("WARMUP_CANDLES", "60")

	cfg, err := Load(filepath.Join(dir, "bot.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 300, cfg.BufferSize)
	assert.Equal(t, 60, cfg.WarmupCandles, "env beats file")

	p, err := cfg.StrategyParams()
	require.NoError(t, err)
	bc := cfg.BufferConfig(p)
	assert.Equal(t, 300, bc.Capacity)
	assert.Equal(t, 60, bc.MinCandles)
	assert.Equal(t, p.EMAPeriod, bc.Nifty.EMA)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := inTempDir(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestStrategyOverrides(t *testing.T) {
	cfg := &Config{StrategyPreset: "V30", TrailPolicy: "ATR", ChopGate: "on"}
	p, err := cfg.StrategyParams()
	require.NoError(t, err)
	assert.Equal(t, strategy.TrailATR, p.Trail)
	assert.True(t, p.ChopGate)

	cfg = &Config{StrategyPreset: "V30_PHASE2", ChopGate: "false"}
	p, err = cfg.StrategyParams()
	require.NoError(t, err)
	assert.False(t, p.ChopGate)

	for _, bad := range []*Config{
		{StrategyPreset: "V99"},
		{StrategyPreset: "V30", TrailPolicy: "sideways"},
		{StrategyPreset: "V30", ChopGate: "maybe"},
	} {
		_, err := bad.StrategyParams()
		assert.Error(t, err, "%+v", bad)
	}
}
