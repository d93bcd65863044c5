package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AgentStore persists buyer agents.
type AgentStore interface {
	Create(ctx context.Context, agent Agent) error
	GetByID(ctx context.Context, id string) (Agent, error)
	List(ctx context.Context, opts ListOpts) ([]Agent, error)
	UpdateStatus(ctx context.Context, id string, status AgentStatus) error
	AddAcquiredItem(ctx context.Context, id string, itemName string) error
	UpdateBalance(ctx context.Context, id string, balance int64) error
	Count(ctx context.Context) (int64, error)
}

// ItemStore persists items for sale.
type ItemStore interface {
	Create(ctx context.Context, item Item) error
	GetByID(ctx context.Context, id string) (Item, error)
	List(ctx context.Context, opts ListOpts) ([]Item, error)
	SetContractInstance(ctx context.Context, id string, instanceID string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// DecisionStore persists the append-only decision log. Register is
// idempotent on record ID: inserting a duplicate returns the first stored
// record unchanged with created=false, never an error.
type DecisionStore interface {
	Register(ctx context.Context, rec DecisionRecord) (stored DecisionRecord, created bool, err error)
	GetByID(ctx context.Context, id string) (DecisionRecord, error)
	List(ctx context.Context, opts ListOpts) ([]DecisionRecord, error)
	ListByAgent(ctx context.Context, agentID string, opts ListOpts) ([]DecisionRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]DecisionRecord, error)
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only operational audit log (listing opens,
// settlements, poller replies).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
