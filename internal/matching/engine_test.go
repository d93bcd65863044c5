package matching

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/contract"
	"github.com/avencia/agentmarket/internal/decide"
	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger/memledger"
	"github.com/avencia/agentmarket/internal/store/memory"
)

// scriptDecider delegates verdicts to a test-provided function.
type scriptDecider struct {
	fn func(agent domain.Agent, item domain.Item) (decide.Decision, error)
}

func (d *scriptDecider) Decide(ctx context.Context, agent domain.Agent, item domain.Item) (decide.Decision, error) {
	return d.fn(agent, item)
}

type fixture struct {
	engine    *Engine
	chain     *memledger.Ledger
	agents    *memory.AgentStore
	items     *memory.ItemStore
	decisions *memory.DecisionStore
	cancel    context.CancelFunc
}

func newFixture(t *testing.T, decider decide.Engine) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	chain := memledger.New()
	agents := memory.NewAgentStore()
	items := memory.NewItemStore()
	decisions := memory.NewDecisionStore()
	manager := contract.NewManager(chain, items, memory.NewAuditStore(), 0, logger)

	engine := NewEngine(decider, manager, agents, decisions, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = engine.Run(ctx) }()
	t.Cleanup(cancel)

	return &fixture{
		engine:    engine,
		chain:     chain,
		agents:    agents,
		items:     items,
		decisions: decisions,
		cancel:    cancel,
	}
}

func (f *fixture) waitForRecords(t *testing.T, n int) []domain.DecisionRecord {
	t.Helper()
	require.Eventually(t, func() bool {
		count, err := f.decisions.Count(context.Background())
		return err == nil && count >= int64(n)
	}, 5*time.Second, 10*time.Millisecond)

	recs, err := f.decisions.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	return recs
}

func TestEngineFIFOOrdering(t *testing.T) {
	decider := &scriptDecider{fn: func(agent domain.Agent, item domain.Item) (decide.Decision, error) {
		return decide.Decision{Verdict: domain.VerdictIgnore, Reasoning: "pass"}, nil
	}}
	f := newFixture(t, decider)

	a1 := domain.Agent{ID: "a1", Status: domain.AgentStatusActive}
	a2 := domain.Agent{ID: "a2", Status: domain.AgentStatusActive}
	a3 := domain.Agent{ID: "a3", Status: domain.AgentStatusActive}
	i1 := domain.Item{ID: "i1", Name: "one"}
	i2 := domain.Item{ID: "i2", Name: "two"}
	i3 := domain.Item{ID: "i3", Name: "three"}

	f.engine.Enqueue(a1, i1)
	f.engine.Enqueue(a2, i2)
	f.engine.Enqueue(a3, i3)

	recs := f.waitForRecords(t, 3)
	require.Len(t, recs, 3)
	assert.Equal(t, "a1", recs[0].AgentID)
	assert.Equal(t, "a2", recs[1].AgentID)
	assert.Equal(t, "a3", recs[2].AgentID)
	for _, rec := range recs {
		assert.Equal(t, domain.VerdictIgnore, rec.Decision)
		assert.Equal(t, domain.SettlementNone, rec.Settlement)
	}
}

func TestEngineFaultIsolation(t *testing.T) {
	decider := &scriptDecider{fn: func(agent domain.Agent, item domain.Item) (decide.Decision, error) {
		if agent.ID == "a2" {
			return decide.Decision{}, errors.New("model unavailable")
		}
		return decide.Decision{Verdict: domain.VerdictIgnore}, nil
	}}
	f := newFixture(t, decider)

	for _, id := range []string{"a1", "a2", "a3"} {
		f.engine.Enqueue(domain.Agent{ID: id}, domain.Item{ID: "i-" + id, Name: id})
	}

	recs := f.waitForRecords(t, 3)
	require.Len(t, recs, 3)
	assert.Equal(t, "a2", recs[1].AgentID)
	assert.Contains(t, recs[1].Reasoning, "decision engine error")
	assert.NotContains(t, recs[0].Reasoning, "error")
	assert.NotContains(t, recs[2].Reasoning, "error")
}

func TestEngineBuySettles(t *testing.T) {
	decider := &scriptDecider{fn: func(agent domain.Agent, item domain.Item) (decide.Decision, error) {
		return decide.Decision{Verdict: domain.VerdictBuy, Reasoning: "want it", MaxPrice: 1_000}, nil
	}}
	f := newFixture(t, decider)

	ctx := context.Background()
	agent := domain.Agent{
		ID:            "a1",
		WalletID:      "buyer",
		WalletBalance: 1_000,
		Status:        domain.AgentStatusActive,
	}
	require.NoError(t, f.agents.Create(ctx, agent))
	f.chain.Fund("buyer", 1_000)

	item := domain.Item{ID: "i1", Name: "camera", Price: 600, SellerWallet: "seller"}
	require.NoError(t, f.items.Create(ctx, item))

	f.engine.Enqueue(agent, item)

	recs := f.waitForRecords(t, 1)
	rec := recs[0]
	assert.Equal(t, domain.VerdictBuy, rec.Decision)
	assert.Equal(t, domain.SettlementSucceeded, rec.Settlement)
	assert.NotEmpty(t, rec.TxID)
	assert.Empty(t, rec.SettlementErr)

	sellerBal, err := f.chain.AccountBalance(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(600), sellerBal)

	got, err := f.agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"camera"}, got.ItemsAcquired)
	assert.Equal(t, int64(400), got.WalletBalance)

	stored, err := f.items.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ContractInstanceID)
}

func TestEngineBuyRecordedDespiteSettlementFailure(t *testing.T) {
	decider := &scriptDecider{fn: func(agent domain.Agent, item domain.Item) (decide.Decision, error) {
		return decide.Decision{Verdict: domain.VerdictBuy}, nil
	}}
	f := newFixture(t, decider)

	ctx := context.Background()
	agent := domain.Agent{ID: "a1", WalletID: "buyer", WalletBalance: 50}
	require.NoError(t, f.agents.Create(ctx, agent))
	// Wallet deliberately unfunded on chain: settlement must fail.

	item := domain.Item{ID: "i1", Name: "camera", Price: 600, SellerWallet: "seller"}
	require.NoError(t, f.items.Create(ctx, item))

	f.engine.Enqueue(agent, item)

	recs := f.waitForRecords(t, 1)
	rec := recs[0]
	assert.Equal(t, domain.VerdictBuy, rec.Decision)
	assert.Equal(t, domain.SettlementFailed, rec.Settlement)
	assert.NotEmpty(t, rec.SettlementErr)

	got, err := f.agents.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, got.ItemsAcquired)
	assert.Equal(t, int64(50), got.WalletBalance)
}

func TestEngineDedupSuppressesRepeatedPair(t *testing.T) {
	decider := &scriptDecider{fn: func(agent domain.Agent, item domain.Item) (decide.Decision, error) {
		return decide.Decision{Verdict: domain.VerdictIgnore}, nil
	}}
	f := newFixture(t, decider)

	agent := domain.Agent{ID: "a1"}
	item := domain.Item{ID: "i1", Name: "camera"}
	f.engine.Enqueue(agent, item)
	f.engine.Enqueue(agent, item)
	f.engine.Enqueue(domain.Agent{ID: "a2"}, item)

	recs := f.waitForRecords(t, 2)
	// Give the drain loop a beat to prove no third record appears.
	time.Sleep(50 * time.Millisecond)
	count, err := f.decisions.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "a1", recs[0].AgentID)
	assert.Equal(t, "a2", recs[1].AgentID)
}

func TestEngineFanOutHelpers(t *testing.T) {
	decider := &scriptDecider{fn: func(agent domain.Agent, item domain.Item) (decide.Decision, error) {
		return decide.Decision{Verdict: domain.VerdictIgnore}, nil
	}}
	f := newFixture(t, decider)

	agents := []domain.Agent{
		{ID: "a1", Status: domain.AgentStatusActive},
		{ID: "a2", Status: domain.AgentStatusInactive}, // skipped
		{ID: "a3", Status: domain.AgentStatusActive},
	}
	f.engine.ProcessNewItem(domain.Item{ID: "i1", Name: "camera"}, agents)

	recs := f.waitForRecords(t, 2)
	assert.Equal(t, "a1", recs[0].AgentID)
	assert.Equal(t, "a3", recs[1].AgentID)

	f.engine.ProcessNewAgent(domain.Agent{ID: "a4"}, []domain.Item{
		{ID: "i2", Name: "lens"},
		{ID: "i3", Name: "tripod"},
	})
	recs = f.waitForRecords(t, 4)
	assert.Equal(t, "i2", recs[2].ItemID)
	assert.Equal(t, "i3", recs[3].ItemID)
}
