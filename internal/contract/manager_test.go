package contract

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger/memledger"
	"github.com/avencia/agentmarket/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerIdempotentOpen(t *testing.T) {
	ctx := context.Background()
	chain := memledger.New()
	items := memory.NewItemStore()
	m := NewManager(chain, items, memory.NewAuditStore(), 0, discardLogger())

	item := domain.Item{ID: "i1", Name: "camera", Price: 500, SellerWallet: "seller"}
	require.NoError(t, items.Create(ctx, item))

	st1, err := m.OpenListingFor(ctx, item, "seller")
	require.NoError(t, err)
	require.NotEmpty(t, st1.InstanceID)
	assert.True(t, st1.IsOpen)

	// Second open returns the same instance, no duplicate deployment.
	st2, err := m.OpenListingFor(ctx, item, "seller")
	require.NoError(t, err)
	assert.Equal(t, st1.InstanceID, st2.InstanceID)

	stored, err := items.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, st1.InstanceID, stored.ContractInstanceID)
}

func TestManagerSettleWithoutListing(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memledger.New(), memory.NewItemStore(), nil, 0, discardLogger())

	_, err := m.SettlePayment(ctx, "ghost", "buyer", "", 10)
	assert.ErrorIs(t, err, domain.ErrNoListing)
}

func TestManagerSettleAndAutoClose(t *testing.T) {
	ctx := context.Background()
	chain := memledger.New()
	chain.Fund("buyer", 1_000)
	items := memory.NewItemStore()
	m := NewManager(chain, items, memory.NewAuditStore(), 0, discardLogger())

	item := domain.Item{ID: "i1", Name: "camera", Price: 500, SellerWallet: "seller"}
	require.NoError(t, items.Create(ctx, item))

	_, err := m.OpenListingFor(ctx, item, "seller")
	require.NoError(t, err)

	msg, err := m.SettlePayment(ctx, "i1", "buyer", "", 500)
	require.NoError(t, err)
	assert.Contains(t, msg, "Listing closed")

	sellerBal, err := chain.AccountBalance(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(500), sellerBal)

	st, _, err := m.StatusFor("i1")
	require.NoError(t, err)
	assert.False(t, st.IsOpen)
}

func TestManagerSettlementFailurePreservesState(t *testing.T) {
	ctx := context.Background()
	chain := memledger.New() // buyer unfunded: submission fails
	items := memory.NewItemStore()
	m := NewManager(chain, items, nil, 0, discardLogger())

	item := domain.Item{ID: "i1", Name: "camera", Price: 500, SellerWallet: "seller"}
	require.NoError(t, items.Create(ctx, item))

	_, err := m.OpenListingFor(ctx, item, "seller")
	require.NoError(t, err)

	_, err = m.SettlePayment(ctx, "i1", "buyer", "", 500)
	var settleErr *domain.SettlementError
	require.ErrorAs(t, err, &settleErr)

	st, _, err := m.StatusFor("i1")
	require.NoError(t, err)
	assert.True(t, st.IsOpen)
	assert.Equal(t, int64(0), st.ReceivedAmount)
}

func TestManagerManualClose(t *testing.T) {
	ctx := context.Background()
	items := memory.NewItemStore()
	m := NewManager(memledger.New(), items, nil, 0, discardLogger())

	item := domain.Item{ID: "i1", Name: "camera", Price: 500}
	require.NoError(t, items.Create(ctx, item))

	_, err := m.CloseFor(ctx, "i1")
	assert.ErrorIs(t, err, domain.ErrNoListing)

	_, err = m.OpenListingFor(ctx, item, "seller")
	require.NoError(t, err)

	msg, err := m.CloseFor(ctx, "i1")
	require.NoError(t, err)
	assert.Contains(t, msg, "closed")

	msg, err = m.CloseFor(ctx, "i1")
	require.NoError(t, err)
	assert.Contains(t, msg, "already closed")
}
