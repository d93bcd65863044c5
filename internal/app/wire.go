package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/avencia/agentmarket/internal/blob/s3"
	"github.com/avencia/agentmarket/internal/cache/redis"
	"github.com/avencia/agentmarket/internal/config"
	"github.com/avencia/agentmarket/internal/crypto"
	"github.com/avencia/agentmarket/internal/decide"
	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger"
	"github.com/avencia/agentmarket/internal/ledger/evm"
	"github.com/avencia/agentmarket/internal/ledger/memledger"
	"github.com/avencia/agentmarket/internal/notify"
	"github.com/avencia/agentmarket/internal/store/memory"
	"github.com/avencia/agentmarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Agents    domain.AgentStore
	Items     domain.ItemStore
	Decisions domain.DecisionStore
	Audit     domain.AuditStore

	// Caches and coordination (nil in dev mode)
	Balances    domain.BalanceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (only for archive-capable modes)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Ledger and decision engine
	Chain   ledger.Client
	Decider decide.Engine

	// OperatorSecret is the resolved signing key for the operator wallet.
	OperatorSecret string

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources. Ledger adapter failure
// is fatal: every mode either settles payments or scans blocks.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger adapter ---
	switch cfg.Ledger.Backend {
	case "evm":
		chain, err := evm.New(ctx, evm.ClientConfig{
			RPCURL:  cfg.Ledger.RPCURL,
			ChainID: cfg.Ledger.ChainID,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger: %w", err)
		}
		closers = append(closers, chain.Close)
		deps.Chain = chain
	default:
		deps.Chain = memledger.New()
	}

	// --- Operator signing key ---
	if cfg.Ledger.OperatorSecret != "" || cfg.Ledger.OperatorKeyPath != "" {
		secret, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Ledger.OperatorSecret,
			EncryptedKeyPath: cfg.Ledger.OperatorKeyPath,
			KeyPassword:      cfg.Ledger.OperatorKeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		deps.OperatorSecret = secret
	}

	// --- Decision engine ---
	switch cfg.Decision.Engine {
	case "remote":
		deps.Decider = decide.NewRemote(decide.RemoteConfig{
			BaseURL: cfg.Decision.BaseURL,
			APIKey:  cfg.Decision.ApiKey,
			Timeout: cfg.Decision.Timeout.Duration,
		})
	default:
		deps.Decider = decide.NewRuleBased()
	}

	// --- Stores: Postgres everywhere except dev mode ---
	if cfg.Mode == "dev" {
		deps.Agents = memory.NewAgentStore()
		deps.Items = memory.NewItemStore()
		deps.Decisions = memory.NewDecisionStore()
		deps.Audit = memory.NewAuditStore()
	} else {
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

		pool := pgClient.Pool()
		deps.Agents = postgres.NewAgentStore(pool)
		deps.Items = postgres.NewItemStore(pool)
		deps.Decisions = postgres.NewDecisionStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}

	// --- Redis: signal bus, balance cache, lock, rate limiter ---
	if cfg.Mode != "dev" {
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

		deps.Balances = redis.NewBalanceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (only for archive-capable modes) ---
	if needsS3(cfg) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Decisions, deps.Audit)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
