package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avencia/agentmarket/internal/domain"
)

// balanceTTL bounds how stale a cached balance may get before readers fall
// back to the ledger.
const balanceTTL = 30 * time.Second

// BalanceCache implements domain.BalanceCache using Redis hashes. Each wallet
// balance is stored at key "balance:{wallet}" with fields "amount" and "ts"
// (Unix nanosecond timestamp).
type BalanceCache struct {
	rdb *redis.Client
}

// NewBalanceCache creates a BalanceCache backed by the given Client.
func NewBalanceCache(c *Client) *BalanceCache {
	return &BalanceCache{rdb: c.Underlying()}
}

func balanceKey(wallet string) string {
	return "balance:" + wallet
}

// SetBalance stores the latest observed balance and timestamp for a wallet.
func (bc *BalanceCache) SetBalance(ctx context.Context, wallet string, balance int64, ts time.Time) error {
	key := balanceKey(wallet)
	fields := map[string]interface{}{
		"amount": strconv.FormatInt(balance, 10),
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := bc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, balanceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set balance %s: %w", wallet, err)
	}
	return nil
}

// GetBalance retrieves the cached balance and its observation time for a
// wallet. It returns domain.ErrNotFound when nothing is cached.
func (bc *BalanceCache) GetBalance(ctx context.Context, wallet string) (int64, time.Time, error) {
	vals, err := bc.rdb.HGetAll(ctx, balanceKey(wallet)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get balance %s: %w", wallet, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	amountStr, ok := vals["amount"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse balance %s: %w", wallet, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse balance ts %s: %w", wallet, err)
	}

	return amount, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached balance for a wallet, forcing the next read to
// hit the ledger. Called after every settlement touching the wallet.
func (bc *BalanceCache) Invalidate(ctx context.Context, wallet string) error {
	if err := bc.rdb.Del(ctx, balanceKey(wallet)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate balance %s: %w", wallet, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BalanceCache = (*BalanceCache)(nil)
