package service

import (
	"context"
	"fmt"

	"github.com/avencia/agentmarket/internal/domain"
)

// DecisionService exposes read access to the append-only decision log.
type DecisionService struct {
	decisions domain.DecisionStore
}

func NewDecisionService(decisions domain.DecisionStore) *DecisionService {
	return &DecisionService{decisions: decisions}
}

// GetDecision retrieves a single record by id.
func (s *DecisionService) GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error) {
	rec, err := s.decisions.GetByID(ctx, id)
	if err != nil {
		return domain.DecisionRecord{}, fmt.Errorf("decision_service: get %q: %w", id, err)
	}
	return rec, nil
}

// ListDecisions returns records in append order.
func (s *DecisionService) ListDecisions(ctx context.Context, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	recs, err := s.decisions.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("decision_service: list: %w", err)
	}
	return recs, nil
}

// ListByAgent returns one agent's records in append order.
func (s *DecisionService) ListByAgent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	recs, err := s.decisions.ListByAgent(ctx, agentID, opts)
	if err != nil {
		return nil, fmt.Errorf("decision_service: list by agent %q: %w", agentID, err)
	}
	return recs, nil
}

// Count returns the total number of decision records.
func (s *DecisionService) Count(ctx context.Context) (int64, error) {
	count, err := s.decisions.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("decision_service: count: %w", err)
	}
	return count, nil
}
