// Package memory implements the domain store interfaces with mutex-guarded
// maps. It backs dev mode and tests; the postgres package provides the
// persistent equivalents behind the same interfaces.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avencia/agentmarket/internal/domain"
)

// AgentStore is an in-memory domain.AgentStore.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
}

// NewAgentStore creates an empty AgentStore.
func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[string]domain.Agent)}
}

// Create inserts a new agent. It fails with domain.ErrAlreadyExists when the
// id is taken.
func (s *AgentStore) Create(ctx context.Context, agent domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.agents[agent.ID] = agent
	return nil
}

// GetByID returns an agent by id.
func (s *AgentStore) GetByID(ctx context.Context, id string) (domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return domain.Agent{}, domain.ErrNotFound
	}
	return agent, nil
}

// List returns agents ordered by creation time, oldest first.
func (s *AgentStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })
	return paginate(agents, opts), nil
}

// UpdateStatus changes an agent's status.
func (s *AgentStore) UpdateStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return domain.ErrNotFound
	}
	agent.Status = status
	agent.UpdatedAt = time.Now().UTC()
	s.agents[id] = agent
	return nil
}

// AddAcquiredItem appends an item name to the agent's acquisitions.
func (s *AgentStore) AddAcquiredItem(ctx context.Context, id string, itemName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return domain.ErrNotFound
	}
	agent.ItemsAcquired = append(agent.ItemsAcquired, itemName)
	agent.UpdatedAt = time.Now().UTC()
	s.agents[id] = agent
	return nil
}

// UpdateBalance sets the agent's cached wallet balance.
func (s *AgentStore) UpdateBalance(ctx context.Context, id string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return domain.ErrNotFound
	}
	agent.WalletBalance = balance
	agent.UpdatedAt = time.Now().UTC()
	s.agents[id] = agent
	return nil
}

// Count returns the number of agents.
func (s *AgentStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.agents)), nil
}

// ItemStore is an in-memory domain.ItemStore.
type ItemStore struct {
	mu    sync.RWMutex
	items map[string]domain.Item
}

// NewItemStore creates an empty ItemStore.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]domain.Item)}
}

// Create inserts a new item.
func (s *ItemStore) Create(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.items[item.ID] = item
	return nil
}

// GetByID returns an item by id.
func (s *ItemStore) GetByID(ctx context.Context, id string) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return domain.Item{}, domain.ErrNotFound
	}
	return item, nil
}

// List returns items ordered by creation time, oldest first.
func (s *ItemStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return paginate(items, opts), nil
}

// SetContractInstance records the listing contract instance id on an item.
// The id transitions from unset to set exactly once; overwriting an existing
// instance id fails with domain.ErrAlreadyExists.
func (s *ItemStore) SetContractInstance(ctx context.Context, id string, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.ContractInstanceID != "" && item.ContractInstanceID != instanceID {
		return domain.ErrAlreadyExists
	}
	item.ContractInstanceID = instanceID
	s.items[id] = item
	return nil
}

// Delete removes an item.
func (s *ItemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Count returns the number of items.
func (s *ItemStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items)), nil
}

// DecisionStore is an in-memory domain.DecisionStore.
type DecisionStore struct {
	mu      sync.RWMutex
	byID    map[string]domain.DecisionRecord
	ordered []string // insertion order for deterministic listing
}

// NewDecisionStore creates an empty DecisionStore.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{byID: make(map[string]domain.DecisionRecord)}
}

// Register appends a decision record. Registering an id that already exists
// returns the first stored record unchanged with created=false.
func (s *DecisionStore) Register(ctx context.Context, rec domain.DecisionRecord) (domain.DecisionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[rec.ID]; ok {
		return existing, false, nil
	}
	s.byID[rec.ID] = rec
	s.ordered = append(s.ordered, rec.ID)
	return rec, true, nil
}

// GetByID returns a decision record by id.
func (s *DecisionStore) GetByID(ctx context.Context, id string) (domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return domain.DecisionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// List returns decision records in registration order.
func (s *DecisionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]domain.DecisionRecord, 0, len(s.ordered))
	for _, id := range s.ordered {
		recs = append(recs, s.byID[id])
	}
	return paginate(recs, opts), nil
}

// ListByAgent returns an agent's decision records in registration order.
func (s *DecisionStore) ListByAgent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []domain.DecisionRecord
	for _, id := range s.ordered {
		if s.byID[id].AgentID == agentID {
			recs = append(recs, s.byID[id])
		}
	}
	return paginate(recs, opts), nil
}

// ListBefore returns decision records created strictly before the cutoff.
func (s *DecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []domain.DecisionRecord
	for _, id := range s.ordered {
		if s.byID[id].CreatedAt.Before(before) {
			recs = append(recs, s.byID[id])
		}
	}
	return recs, nil
}

// Count returns the number of decision records.
func (s *DecisionStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.ordered)), nil
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// List returns audit entries in append order.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return paginate(out, opts), nil
}

// ListBefore returns audit entries created strictly before the cutoff.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

// paginate applies Limit/Offset from opts to a slice.
func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return []T{}
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
