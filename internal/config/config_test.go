package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Trading.OrderNotionalUSDC = 0
	cfg.Trading.MinPrice = 0.9
	cfg.Trading.MaxPrice = 0.1
	cfg.Risk.MaxTradesPerDay = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "order_notional_usdc")
	assert.Contains(t, err.Error(), "price band")
	assert.Contains(t, err.Error(), "max_trades_per_day")
}

func TestValidateLiveTradingRequiresKey(t *testing.T) {
	cfg := Defaults()
	cfg.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	cfg.Wallet.PrivateKey = "0xabc"
	require.NoError(t, cfg.Validate())
}

func TestValidateCatalogTTLFloor(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.CatalogTTL = duration{5 * time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog_ttl")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLYBOT_DRY_RUN", "false")
	t.Setenv("POLYBOT_TRADING_MAX_MARKETS", "7")
	t.Setenv("POLYBOT_TRADING_LOOP_INTERVAL", "45s")
	t.Setenv("POLYBOT_TRADING_BLACKLIST", "trump, election ,")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.False(t, cfg.DryRun)
	assert.Equal(t, 7, cfg.Trading.MaxMarkets)
	assert.Equal(t, 45*time.Second, cfg.Trading.LoopInterval.Duration)
	assert.Equal(t, []string{"trump", "election"}, cfg.Trading.Blacklist)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// Original untouched.
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
}
