// Package config defines the top-level configuration for the agent
// marketplace and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AGENTMARKET_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Decision DecisionConfig `toml:"decision"`
	Matching MatchingConfig `toml:"matching"`
	Poller   PollerConfig   `toml:"poller"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig selects and parameterizes the blockchain backend.
type LedgerConfig struct {
	// Backend selects the ledger implementation: "evm" or "memory".
	Backend string `toml:"backend"`
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
	// CallTimeout bounds each ledger call made by the listing contracts.
	CallTimeout duration `toml:"call_timeout"`
	// OperatorWallet receives listing payments when an item carries no
	// seller wallet of its own.
	OperatorWallet string `toml:"operator_wallet"`
	OperatorSecret string `toml:"operator_secret"`
	// OperatorKeyPath points at an encrypted key file as an alternative to
	// operator_secret. OperatorKeyPassword decrypts it.
	OperatorKeyPath     string `toml:"operator_key_path"`
	OperatorKeyPassword string `toml:"operator_key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// DecisionConfig selects and parameterizes the decision engine.
type DecisionConfig struct {
	// Engine selects the implementation: "rulebased" or "remote".
	Engine  string   `toml:"engine"`
	BaseURL string   `toml:"base_url"`
	ApiKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// MatchingConfig holds dispatch engine parameters.
type MatchingConfig struct {
	DedupTTL      duration `toml:"dedup_ttl"`
	DecideTimeout duration `toml:"decide_timeout"`
}

// PollerConfig holds blockchain event poller parameters.
type PollerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Interval        duration `toml:"interval"`
	TrackedWallet   string   `toml:"tracked_wallet"`
	WalletSecret    string   `toml:"wallet_secret"`
	ReplyAmount     int64    `toml:"reply_amount"`
	ResponderPrompt string   `toml:"responder_prompt"`
}

// ArchiveConfig holds cold-storage export parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
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
	// ApiToken protects mutating endpoints. Empty disables auth (dev only).
	ApiToken string `toml:"api_token"`
	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	WebhookURL     string   `toml:"webhook_url"`
	Events         []string `toml:"events"`
	Buffer         int      `toml:"buffer"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Backend:     "memory",
			ChainID:     31337,
			CallTimeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "agentmarket",
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
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "agentmarket-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Decision: DecisionConfig{
			Engine:  "rulebased",
			Timeout: duration{30 * time.Second},
		},
		Matching: MatchingConfig{
			DedupTTL:      duration{10 * time.Minute},
			DecideTimeout: duration{30 * time.Second},
		},
		Poller: PollerConfig{
			Enabled:     false,
			Interval:    duration{5 * time.Second},
			ReplyAmount: 1,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"purchase", "settlement_failure", "listing_closed"},
			Buffer: 256,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"poll":    true,
	"archive": true,
	"full":    true,
	"dev":     true,
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

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, poll, archive, full, dev)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	switch strings.ToLower(c.Ledger.Backend) {
	case "memory":
	case "evm":
		if c.Ledger.RPCURL == "" {
			errs = append(errs, "ledger: rpc_url is required for the evm backend")
		}
		if c.Ledger.ChainID <= 0 {
			errs = append(errs, "ledger: chain_id must be positive for the evm backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: evm, memory)", c.Ledger.Backend))
	}
	if c.Ledger.CallTimeout.Duration < 0 {
		errs = append(errs, "ledger: call_timeout must not be negative")
	}

	// Postgres is required in every mode but dev.
	if mode != "dev" {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Decision
	switch strings.ToLower(c.Decision.Engine) {
	case "rulebased":
	case "remote":
		if c.Decision.BaseURL == "" {
			errs = append(errs, "decision: base_url is required for the remote engine")
		}
	default:
		errs = append(errs, fmt.Sprintf("decision: unknown engine %q (valid: rulebased, remote)", c.Decision.Engine))
	}

	// Poller
	if c.Poller.Enabled || mode == "poll" {
		if c.Poller.TrackedWallet == "" {
			errs = append(errs, "poller: tracked_wallet is required when the poller is enabled")
		}
		if c.Poller.Interval.Duration <= 0 {
			errs = append(errs, "poller: interval must be positive")
		}
		if c.Poller.ReplyAmount <= 0 {
			errs = append(errs, "poller: reply_amount must be positive")
		}
	}

	// Archive needs object storage.
	if c.Archive.Enabled || mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Matching
	if c.Matching.DedupTTL.Duration <= 0 {
		errs = append(errs, "matching: dedup_ttl must be positive")
	}
	if c.Matching.DecideTimeout.Duration < 0 {
		errs = append(errs, "matching: decide_timeout must not be negative")
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
