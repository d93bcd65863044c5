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

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateEVMNeedsRPCURL(t *testing.T) {
	cfg := Defaults()
	cfg.Ledger.Backend = "evm"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")
}

func TestValidatePollerNeedsWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "poll"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracked_wallet")
}

func TestValidateDevModeSkipsInfraChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "dev"
	cfg.Postgres = PostgresConfig{}
	cfg.Redis = RedisConfig{}
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTMARKET_MODE", "serve")
	t.Setenv("AGENTMARKET_LEDGER_BACKEND", "evm")
	t.Setenv("AGENTMARKET_LEDGER_RPC_URL", "http://localhost:8545")
	t.Setenv("AGENTMARKET_LEDGER_CHAIN_ID", "1337")
	t.Setenv("AGENTMARKET_MATCHING_DEDUP_TTL", "3m")
	t.Setenv("AGENTMARKET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AGENTMARKET_POSTGRES_RUN_MIGRATIONS", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "evm", cfg.Ledger.Backend)
	assert.Equal(t, "http://localhost:8545", cfg.Ledger.RPCURL)
	assert.Equal(t, int64(1337), cfg.Ledger.ChainID)
	assert.Equal(t, 3*time.Minute, cfg.Matching.DedupTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Postgres.RunMigrations)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Poller.WalletSecret = "0xdeadbeef"
	cfg.Server.ApiToken = "token"
	cfg.Notify.TelegramToken = "tg"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Poller.WalletSecret)
	assert.Equal(t, "***", red.Server.ApiToken)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	// Slice copies are independent.
	red.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
}
