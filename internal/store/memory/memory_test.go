package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/domain"
)

func TestDecisionRegisterIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewDecisionStore()

	first := domain.DecisionRecord{
		ID:       "d1",
		AgentID:  "a1",
		ItemID:   "i1",
		Decision: domain.VerdictBuy,
	}
	stored, created, err := s.Register(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first, stored)

	// A duplicate id with a different payload returns the first record
	// unchanged and signals "already exists" via created=false.
	dupe := first
	dupe.Decision = domain.VerdictIgnore
	dupe.Reasoning = "changed my mind"
	stored, created, err = s.Register(ctx, dupe)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.VerdictBuy, stored.Decision)
	assert.Empty(t, stored.Reasoning)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDecisionListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewDecisionStore()

	for _, id := range []string{"d1", "d2", "d3"} {
		_, _, err := s.Register(ctx, domain.DecisionRecord{ID: id, AgentID: "a1"})
		require.NoError(t, err)
	}

	recs, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "d1", recs[0].ID)
	assert.Equal(t, "d2", recs[1].ID)
	assert.Equal(t, "d3", recs[2].ID)

	recs, err = s.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "d2", recs[0].ID)
}

func TestItemContractInstanceSetOnce(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	require.NoError(t, s.Create(ctx, domain.Item{ID: "i1", Name: "camera"}))

	require.NoError(t, s.SetContractInstance(ctx, "i1", "inst-1"))

	// Same instance id is fine (idempotent open path), another id is not.
	require.NoError(t, s.SetContractInstance(ctx, "i1", "inst-1"))
	assert.ErrorIs(t, s.SetContractInstance(ctx, "i1", "inst-2"), domain.ErrAlreadyExists)

	item, err := s.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "inst-1", item.ContractInstanceID)
}

func TestAgentAcquisitions(t *testing.T) {
	ctx := context.Background()
	s := NewAgentStore()
	require.NoError(t, s.Create(ctx, domain.Agent{
		ID:        "a1",
		Status:    domain.AgentStatusActive,
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.AddAcquiredItem(ctx, "a1", "camera"))
	require.NoError(t, s.AddAcquiredItem(ctx, "a1", "lens"))

	agent, err := s.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"camera", "lens"}, agent.ItemsAcquired)
	assert.True(t, agent.HasAcquired("lens"))
	assert.False(t, agent.HasAcquired("tripod"))

	assert.ErrorIs(t, s.AddAcquiredItem(ctx, "missing", "x"), domain.ErrNotFound)
}
