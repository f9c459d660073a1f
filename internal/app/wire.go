package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/blob/s3"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/cache/redis"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/config"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/crypto"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/engine"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/notify"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/platform/polymarket"
	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. Optional
// collaborators (caches, event store, archiver) are nil when not configured;
// the orchestrator degrades gracefully without them.
type Dependencies struct {
	Gamma *polymarket.GammaClient
	Clob  *polymarket.ClobClient

	// Gateway is the live CLOB client when trading is armed, or the paper
	// gateway in dry-run.
	Gateway engine.OrderGateway

	CatalogCache domain.CatalogCache
	QuoteCache   domain.QuoteCache
	EventStore   domain.TradeEventStore
	Archiver     domain.Archiver
	Notifier     *notify.Notifier

	Orchestrator *engine.Orchestrator

	// LiveTrading is true when real orders can reach the exchange.
	LiveTrading bool
	StartedAt   time.Time
}

// tradingMode reports whether the configured mode runs the tick loop.
func tradingMode(mode string) bool {
	switch strings.ToLower(mode) {
	case "trade", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function for shutdown.
//
// A missing private key is fatal only when live trading is requested; the
// status server and the dry-run pipeline work without credentials.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		StartedAt: time.Now().UTC(),
		Gamma:     polymarket.NewGammaClient(cfg.Polymarket.GammaHost),
	}

	// --- Order gateway: live CLOB or paper ---
	live := tradingMode(cfg.Mode) && !cfg.DryRun
	walletAddr := cfg.Wallet.FunderAddress

	if live {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load private key: %w: %w", domain.ErrConfigMissing, err)
		}
		signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		walletAddr = signer.Address().Hex()

		var hmac *crypto.HMACAuth
		if cfg.Polymarket.ApiKey != "" {
			hmac = &crypto.HMACAuth{
				Key:        cfg.Polymarket.ApiKey,
				Secret:     cfg.Polymarket.ApiSecret,
				Passphrase: cfg.Polymarket.ApiPassphrase,
			}
		}

		clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, hmac, cfg.Polymarket.SignatureType)
		if hmac == nil {
			if err := clob.DeriveAPIKey(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: derive api key: %w", err)
			}
		}
		deps.Clob = clob
		deps.Gateway = clob
		deps.LiveTrading = true
	} else {
		// Read-only book access plus a simulated gateway.
		deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, nil, nil, cfg.Polymarket.SignatureType)
		deps.Gateway = engine.NewPaperGateway(logger)
		if walletAddr == "" {
			walletAddr = "0x0000000000000000000000000000000000000000"
		}
	}

	// --- Redis caches (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.CatalogCache = redis.NewCatalogCache(redisClient, cfg.Redis.CatalogTTL.Duration)
		deps.QuoteCache = redis.NewQuoteCache(redisClient)
	}

	// --- Postgres trade event log (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.EventStore = postgres.NewTradeEventStore(pgClient.Pool())
	}

	// --- S3 day-end archival (optional, needs the event store) ---
	if cfg.S3.Enabled && deps.EventStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewDayArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.EventStore,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.DedupWindow.Duration, logger)

	// --- Trading engine ---
	gate := engine.NewRiskGate(engine.RiskGateConfig{
		DailyStopLossPct:       cfg.Risk.DailyStopLossPct,
		MaxTradesPerDay:        cfg.Risk.MaxTradesPerDay,
		EquityFallbackMultiple: cfg.Risk.EquityFallbackMultiple,
		OrderNotionalUSDC:      cfg.Trading.OrderNotionalUSDC,
	}, logger)

	lifecycle := engine.NewLifecycle(engine.LifecycleConfig{
		Wallet:            walletAddr,
		OrderNotionalUSDC: cfg.Trading.OrderNotionalUSDC,
		TakeProfitPct:     cfg.Trading.TakeProfitPct,
		StopLossPct:       cfg.Trading.StopLossPct,
		MaxHold:           cfg.Trading.MaxHold.Duration,
		CloseSizeFraction: cfg.Trading.CloseSizeFraction,
	}, deps.Gateway, deps.Clob, gate, logger)

	orch := engine.NewOrchestrator(engine.OrchestratorConfig{
		Scorer: engine.ScorerConfig{
			MinVolume24h: cfg.Trading.MinVolume24h,
			MaxSpread:    cfg.Trading.MaxSpread,
			MinPrice:     cfg.Trading.MinPrice,
			MaxPrice:     cfg.Trading.MaxPrice,
			Blacklist:    cfg.Trading.Blacklist,
			MaxMarkets:   cfg.Trading.MaxMarkets,
		},
		Selector: engine.SelectorConfig{
			MaxSpread:       cfg.Trading.MaxSpread,
			MinPrice:        cfg.Trading.MinPrice,
			MaxPrice:        cfg.Trading.MaxPrice,
			ImbalanceWeight: cfg.Trading.ImbalanceWeight,
		},
		LoopInterval:         cfg.Trading.LoopInterval.Duration,
		HeartbeatEveryNTicks: cfg.Trading.HeartbeatEveryNTicks,
		DryRun:               !deps.LiveTrading,
		ChainID:              cfg.Polymarket.ChainID,
	}, deps.Gamma, deps.Clob, gate, lifecycle, logger)

	orch.WithNotifier(deps.Notifier)
	if deps.CatalogCache != nil {
		orch.WithCatalogCache(deps.CatalogCache)
	}
	if deps.QuoteCache != nil {
		orch.WithQuoteCache(deps.QuoteCache)
	}
	if deps.EventStore != nil {
		orch.WithEventStore(deps.EventStore)
	}
	if deps.Archiver != nil {
		orch.WithArchiver(deps.Archiver)
	}
	deps.Orchestrator = orch

	return deps, cleanup, nil
}
