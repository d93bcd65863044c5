package decide

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/domain"
)

func TestRuleBasedBuysMatchingItemWithinBudget(t *testing.T) {
	e := NewRuleBased()
	agent := domain.Agent{
		Prompt:        "Collect vintage cameras, max price 2000",
		WalletBalance: 5_000,
	}
	item := domain.Item{Name: "Vintage Camera", Price: 1_500}

	d, err := e.Decide(context.Background(), agent, item)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictBuy, d.Verdict)
	assert.Equal(t, int64(2000), d.MaxPrice)
	assert.NotEmpty(t, d.Reasoning)
}

func TestRuleBasedIgnoresOverBudget(t *testing.T) {
	e := NewRuleBased()
	agent := domain.Agent{Prompt: "Collect vintage cameras, budget 1000"}
	item := domain.Item{Name: "Vintage Camera", Price: 1_500}

	d, err := e.Decide(context.Background(), agent, item)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictIgnore, d.Verdict)
	assert.Contains(t, d.Reasoning, "budget")
}

func TestRuleBasedIgnoresUnrelatedItem(t *testing.T) {
	e := NewRuleBased()
	agent := domain.Agent{Prompt: "Collect vintage cameras"}
	item := domain.Item{Name: "Lawn Mower", Price: 100}

	d, err := e.Decide(context.Background(), agent, item)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictIgnore, d.Verdict)
}

func TestRuleBasedRespectsWalletBalance(t *testing.T) {
	e := NewRuleBased()
	agent := domain.Agent{Prompt: "buy cameras", WalletBalance: 100}
	item := domain.Item{Name: "Cameras", Price: 500}

	d, err := e.Decide(context.Background(), agent, item)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictIgnore, d.Verdict)
	assert.Contains(t, d.Reasoning, "wallet balance")
}

func TestRuleBasedMatchesDescription(t *testing.T) {
	e := NewRuleBased()
	agent := domain.Agent{Prompt: "anything with leica glass"}
	item := domain.Item{Name: "M3 Body", Description: "classic Leica rangefinder", Price: 50}

	d, err := e.Decide(context.Background(), agent, item)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictBuy, d.Verdict)
}
