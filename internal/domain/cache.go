package domain

import (
	"context"
	"time"
)

// BalanceCache provides fast access to recently observed wallet balances so
// the HTTP surface does not hit the ledger on every read.
type BalanceCache interface {
	SetBalance(ctx context.Context, wallet string, balance int64, ts time.Time) error
	GetBalance(ctx context.Context, wallet string) (int64, time.Time, error)
	Invalidate(ctx context.Context, wallet string) error
}

// LockManager provides distributed locking. It is used to guarantee a single
// active event poller across process instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter enforces sliding-window request limits shared across process
// instances. The HTTP middleware uses it to throttle unauthenticated reads.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. The matching engine
// appends every decision record to the "decisions" stream; external
// observers (dashboards, live feeds) read it without touching core state.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
