// Package service implements the application services between the HTTP
// handlers and the stores, ledger, and matching engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger"
)

// Dispatcher is the slice of the matching engine the services need: fan-out
// of newly registered agents and items into the work queue.
type Dispatcher interface {
	ProcessNewAgent(agent domain.Agent, items []domain.Item)
	ProcessNewItem(item domain.Item, agents []domain.Agent)
}

// AgentService handles buyer agent registration and wallet reads.
type AgentService struct {
	agents     domain.AgentStore
	items      domain.ItemStore
	chain      ledger.Client
	balances   domain.BalanceCache // optional
	dispatcher Dispatcher
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewAgentService creates an AgentService with all required dependencies.
// balances may be nil, in which case every balance read hits the ledger.
func NewAgentService(
	agents domain.AgentStore,
	items domain.ItemStore,
	chain ledger.Client,
	balances domain.BalanceCache,
	dispatcher Dispatcher,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AgentService {
	return &AgentService{
		agents:     agents,
		items:      items,
		chain:      chain,
		balances:   balances,
		dispatcher: dispatcher,
		audit:      audit,
		logger:     logger,
	}
}

// CreateAgent validates and stores a new agent, then enqueues it against
// every item already on the market. The agent's wallet balance is read from
// the ledger at registration time.
func (s *AgentService) CreateAgent(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	if strings.TrimSpace(agent.Prompt) == "" {
		return domain.Agent{}, fmt.Errorf("agent_service: %w: prompt must not be empty", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(agent.WalletID) == "" {
		return domain.Agent{}, fmt.Errorf("agent_service: %w: wallet_id must not be empty", domain.ErrInvalidInput)
	}

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.Status == "" {
		agent.Status = domain.AgentStatusActive
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	balance, err := s.chain.AccountBalance(ctx, agent.WalletID)
	if err != nil {
		// A failed balance read marks the agent but does not block
		// registration: the ledger may be temporarily unreachable.
		s.logger.WarnContext(ctx, "agent_service: wallet balance read failed",
			slog.String("wallet", agent.WalletID),
			slog.String("error", err.Error()),
		)
	} else {
		agent.WalletBalance = balance
		s.cacheBalance(ctx, agent.WalletID, balance)
	}

	if err := s.agents.Create(ctx, agent); err != nil {
		return domain.Agent{}, fmt.Errorf("agent_service: create %q: %w", agent.ID, err)
	}

	s.auditLog(ctx, "agent_created", map[string]any{
		"agent_id": agent.ID,
		"wallet":   agent.WalletID,
	})

	// Consider every existing item for the new agent.
	if s.dispatcher != nil {
		items, err := s.items.List(ctx, domain.ListOpts{})
		if err != nil {
			s.logger.WarnContext(ctx, "agent_service: item fan-out skipped",
				slog.String("agent_id", agent.ID),
				slog.String("error", err.Error()),
			)
		} else {
			s.dispatcher.ProcessNewAgent(agent, items)
		}
	}

	s.logger.InfoContext(ctx, "agent_service: agent registered",
		slog.String("agent_id", agent.ID),
		slog.Int64("wallet_balance", agent.WalletBalance),
	)
	return agent, nil
}

// GetAgent retrieves an agent by id.
func (s *AgentService) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("agent_service: get %q: %w", id, err)
	}
	return agent, nil
}

// ListAgents returns agents in registration order.
func (s *AgentService) ListAgents(ctx context.Context, opts domain.ListOpts) ([]domain.Agent, error) {
	agents, err := s.agents.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("agent_service: list: %w", err)
	}
	return agents, nil
}

// Count returns the total number of registered agents.
func (s *AgentService) Count(ctx context.Context) (int64, error) {
	count, err := s.agents.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("agent_service: count: %w", err)
	}
	return count, nil
}

// WalletBalance returns the current spendable balance of a wallet, serving
// from the balance cache when a fresh entry exists.
func (s *AgentService) WalletBalance(ctx context.Context, wallet string) (int64, error) {
	if s.balances != nil {
		if balance, _, err := s.balances.GetBalance(ctx, wallet); err == nil {
			return balance, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "agent_service: balance cache read failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
	}

	balance, err := s.chain.AccountBalance(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("agent_service: wallet balance %q: %w", wallet, err)
	}
	s.cacheBalance(ctx, wallet, balance)
	return balance, nil
}

func (s *AgentService) cacheBalance(ctx context.Context, wallet string, balance int64) {
	if s.balances == nil {
		return
	}
	if err := s.balances.SetBalance(ctx, wallet, balance, time.Now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "agent_service: balance cache write failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AgentService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "agent_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
