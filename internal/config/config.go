// Package config defines the top-level configuration for the trading daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	DryRun     bool             `toml:"dry_run"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	FunderAddress    string `toml:"funder_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints, credentials, and chain
// parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// TradingConfig holds the entry/exit parameters of the single-position loop.
type TradingConfig struct {
	LoopInterval         duration `toml:"loop_interval"`
	MaxMarkets           int      `toml:"max_markets"`
	OrderNotionalUSDC    float64  `toml:"order_notional_usdc"`
	TakeProfitPct        float64  `toml:"take_profit_pct"`
	StopLossPct          float64  `toml:"stop_loss_pct"`
	MaxHold              duration `toml:"max_hold"`
	CloseSizeFraction    float64  `toml:"close_size_fraction"`
	HeartbeatEveryNTicks int      `toml:"heartbeat_every_n_ticks"`

	// Candidate filters.
	MinVolume24h    float64  `toml:"min_volume_24h"`
	MaxSpread       float64  `toml:"max_spread"`
	MinPrice        float64  `toml:"min_price"`
	MaxPrice        float64  `toml:"max_price"`
	Blacklist       []string `toml:"blacklist"`
	ImbalanceWeight float64  `toml:"imbalance_weight"`
}

// RiskConfig holds the daily risk-gate parameters.
type RiskConfig struct {
	DailyStopLossPct float64 `toml:"daily_stop_loss_pct"`
	MaxTradesPerDay  int     `toml:"max_trades_per_day"`
	// EquityFallbackMultiple sizes the start-of-day equity estimate as a
	// multiple of order notional when no balance feed is available.
	EquityFallbackMultiple float64 `toml:"equity_fallback_multiple"`
}

// PostgresConfig holds connection parameters for the trade event log.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// CatalogTTL bounds how long a fetched market catalog may be reused.
	CatalogTTL duration `toml:"catalog_ttl"`
}

// S3Config holds S3-compatible object storage parameters for day-end
// archival of the trade event log.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the API when set; empty disables authentication.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// DedupWindow suppresses repeats of an identical message within the window.
	DedupWindow duration `toml:"dedup_window"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Trading: TradingConfig{
			LoopInterval:         duration{20 * time.Second},
			MaxMarkets:           3,
			OrderNotionalUSDC:    5.0,
			TakeProfitPct:        0.05,
			StopLossPct:          0.02,
			MaxHold:              duration{time.Hour},
			CloseSizeFraction:    0.99,
			HeartbeatEveryNTicks: 15,
			MinVolume24h:         1000,
			MaxSpread:            0.08,
			MinPrice:             0.10,
			MaxPrice:             0.90,
			Blacklist:            []string{},
			ImbalanceWeight:      0.2,
		},
		Risk: RiskConfig{
			DailyStopLossPct:       0.10,
			MaxTradesPerDay:        10,
			EquityFallbackMultiple: 10,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			CatalogTTL: duration{15 * time.Second},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "trader-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events:      []string{"position_opened", "position_closed", "halted", "heartbeat", "error"},
			DedupWindow: duration{5 * time.Minute},
		},
		Mode:     "full",
		DryRun:   true,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":  true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — live trading needs a key source; dry-run and server mode do not.
	needsWallet := !c.DryRun && (c.Mode == "trade" || c.Mode == "full")
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live trading")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	// CLOB API credentials must be set together, or all empty.
	ck := c.Polymarket.ApiKey != ""
	cs := c.Polymarket.ApiSecret != ""
	cp := c.Polymarket.ApiPassphrase != ""
	if (ck || cs || cp) && !(ck && cs && cp) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	// Trading
	if c.Trading.LoopInterval.Duration < time.Second {
		errs = append(errs, "trading: loop_interval must be >= 1s")
	}
	if c.Trading.MaxMarkets < 1 {
		errs = append(errs, "trading: max_markets must be >= 1")
	}
	if c.Trading.OrderNotionalUSDC <= 0 {
		errs = append(errs, "trading: order_notional_usdc must be > 0")
	}
	if c.Trading.TakeProfitPct < 0 {
		errs = append(errs, "trading: take_profit_pct must be >= 0 (0 disables the resting take-profit)")
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		errs = append(errs, "trading: stop_loss_pct must be in (0, 1)")
	}
	if c.Trading.MaxHold.Duration <= 0 {
		errs = append(errs, "trading: max_hold must be > 0")
	}
	if c.Trading.CloseSizeFraction <= 0 || c.Trading.CloseSizeFraction > 1 {
		errs = append(errs, "trading: close_size_fraction must be in (0, 1]")
	}
	if c.Trading.MaxSpread <= 0 {
		errs = append(errs, "trading: max_spread must be > 0")
	}
	if c.Trading.MinPrice < 0 || c.Trading.MaxPrice > 1 || c.Trading.MinPrice >= c.Trading.MaxPrice {
		errs = append(errs, fmt.Sprintf("trading: price band [%g, %g] must satisfy 0 <= min < max <= 1", c.Trading.MinPrice, c.Trading.MaxPrice))
	}
	if c.Trading.HeartbeatEveryNTicks < 1 {
		errs = append(errs, "trading: heartbeat_every_n_ticks must be >= 1")
	}

	// Risk
	if c.Risk.DailyStopLossPct <= 0 || c.Risk.DailyStopLossPct >= 1 {
		errs = append(errs, "risk: daily_stop_loss_pct must be in (0, 1)")
	}
	if c.Risk.MaxTradesPerDay < 1 {
		errs = append(errs, "risk: max_trades_per_day must be >= 1")
	}
	if c.Risk.EquityFallbackMultiple < 1 {
		errs = append(errs, "risk: equity_fallback_multiple must be >= 1")
	}

	// Postgres — only checked when the event log is enabled.
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.CatalogTTL.Duration < 10*time.Second {
		errs = append(errs, "redis: catalog_ttl must be >= 10s")
	}

	// S3 — only checked when archival is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archival requires postgres.enabled (nothing to archive otherwise)")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
