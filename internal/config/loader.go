package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AGENTMARKET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AGENTMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "AGENTMARKET_LEDGER_BACKEND")
	setStr(&cfg.Ledger.RPCURL, "AGENTMARKET_LEDGER_RPC_URL")
	setInt64(&cfg.Ledger.ChainID, "AGENTMARKET_LEDGER_CHAIN_ID")
	setDuration(&cfg.Ledger.CallTimeout, "AGENTMARKET_LEDGER_CALL_TIMEOUT")
	setStr(&cfg.Ledger.OperatorWallet, "AGENTMARKET_LEDGER_OPERATOR_WALLET")
	setStr(&cfg.Ledger.OperatorSecret, "AGENTMARKET_LEDGER_OPERATOR_SECRET")
	setStr(&cfg.Ledger.OperatorKeyPath, "AGENTMARKET_LEDGER_OPERATOR_KEY_PATH")
	setStr(&cfg.Ledger.OperatorKeyPassword, "AGENTMARKET_LEDGER_OPERATOR_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AGENTMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AGENTMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AGENTMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AGENTMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AGENTMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AGENTMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AGENTMARKET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AGENTMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AGENTMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AGENTMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AGENTMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AGENTMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AGENTMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AGENTMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AGENTMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AGENTMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AGENTMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AGENTMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "AGENTMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AGENTMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AGENTMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AGENTMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AGENTMARKET_S3_FORCE_PATH_STYLE")

	// ── Decision ──
	setStr(&cfg.Decision.Engine, "AGENTMARKET_DECISION_ENGINE")
	setStr(&cfg.Decision.BaseURL, "AGENTMARKET_DECISION_BASE_URL")
	setStr(&cfg.Decision.ApiKey, "AGENTMARKET_DECISION_API_KEY")
	setDuration(&cfg.Decision.Timeout, "AGENTMARKET_DECISION_TIMEOUT")

	// ── Matching ──
	setDuration(&cfg.Matching.DedupTTL, "AGENTMARKET_MATCHING_DEDUP_TTL")
	setDuration(&cfg.Matching.DecideTimeout, "AGENTMARKET_MATCHING_DECIDE_TIMEOUT")

	// ── Poller ──
	setBool(&cfg.Poller.Enabled, "AGENTMARKET_POLLER_ENABLED")
	setDuration(&cfg.Poller.Interval, "AGENTMARKET_POLLER_INTERVAL")
	setStr(&cfg.Poller.TrackedWallet, "AGENTMARKET_POLLER_TRACKED_WALLET")
	setStr(&cfg.Poller.WalletSecret, "AGENTMARKET_POLLER_WALLET_SECRET")
	setInt64(&cfg.Poller.ReplyAmount, "AGENTMARKET_POLLER_REPLY_AMOUNT")
	setStr(&cfg.Poller.ResponderPrompt, "AGENTMARKET_POLLER_RESPONDER_PROMPT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "AGENTMARKET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "AGENTMARKET_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "AGENTMARKET_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AGENTMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AGENTMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AGENTMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiToken, "AGENTMARKET_SERVER_API_TOKEN")
	setInt(&cfg.Server.RateLimit, "AGENTMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "AGENTMARKET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AGENTMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AGENTMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.WebhookURL, "AGENTMARKET_NOTIFY_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AGENTMARKET_NOTIFY_EVENTS")
	setInt(&cfg.Notify.Buffer, "AGENTMARKET_NOTIFY_BUFFER")

	// ── Top-level ──
	setStr(&cfg.Mode, "AGENTMARKET_MODE")
	setStr(&cfg.LogLevel, "AGENTMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
