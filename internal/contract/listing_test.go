package contract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger"
	"github.com/avencia/agentmarket/internal/ledger/memledger"
)

// failingLedger rejects every submission with a fixed error.
type failingLedger struct {
	ledger.Client
	err error
}

func (f *failingLedger) SubmitPayment(ctx context.Context, p ledger.Payment) (string, error) {
	return "", f.err
}

func newFundedLedger(t *testing.T, wallet string, balance int64) *memledger.Ledger {
	t.Helper()
	l := memledger.New()
	l.Fund(wallet, balance)
	return l
}

func TestListingSimpleClose(t *testing.T) {
	ctx := context.Background()
	chain := newFundedLedger(t, "buyer", 2_000_000)
	l := NewListing("inst-1", chain, 0)

	_, err := l.Open("seller", 1_000_000)
	require.NoError(t, err)

	msg, err := l.ProcessPayment(ctx, "buyer", "", 1_000_000)
	require.NoError(t, err)
	assert.Contains(t, msg, "closed")
	assert.Contains(t, msg, "1000000/1000000")

	// The listing no longer accepts payments.
	_, err = l.ProcessPayment(ctx, "buyer", "", 1)
	assert.ErrorIs(t, err, domain.ErrNotOpen)
}

func TestListingPartialThenClose(t *testing.T) {
	ctx := context.Background()
	chain := newFundedLedger(t, "buyer", 1_000)
	l := NewListing("inst-1", chain, 0)

	_, err := l.Open("seller", 100)
	require.NoError(t, err)

	msg, err := l.ProcessPayment(ctx, "buyer", "", 40)
	require.NoError(t, err)
	assert.Contains(t, msg, "40/100")

	st, _ := l.Status()
	assert.True(t, st.IsOpen)
	assert.Equal(t, int64(40), st.ReceivedAmount)

	msg, err = l.ProcessPayment(ctx, "buyer", "", 60)
	require.NoError(t, err)
	assert.Contains(t, msg, "closed")

	st, _ = l.Status()
	assert.False(t, st.IsOpen)
	assert.Equal(t, int64(100), st.ReceivedAmount)
}

func TestListingOvershootAccepted(t *testing.T) {
	ctx := context.Background()
	chain := newFundedLedger(t, "buyer", 1_000)
	l := NewListing("inst-1", chain, 0)

	_, err := l.Open("seller", 100)
	require.NoError(t, err)

	msg, err := l.ProcessPayment(ctx, "buyer", "", 150)
	require.NoError(t, err)
	assert.Contains(t, msg, "150/100")

	st, _ := l.Status()
	assert.False(t, st.IsOpen)
	assert.Equal(t, int64(150), st.ReceivedAmount)
	assert.Equal(t, int64(0), st.Remaining())
}

func TestListingRejectsReopenWhileOpen(t *testing.T) {
	chain := memledger.New()
	l := NewListing("inst-1", chain, 0)

	_, err := l.Open("seller", 100)
	require.NoError(t, err)

	_, err = l.Open("seller", 100)
	assert.ErrorIs(t, err, domain.ErrAlreadyOpen)
}

func TestListingReopenAfterClose(t *testing.T) {
	ctx := context.Background()
	chain := newFundedLedger(t, "buyer", 1_000)
	l := NewListing("inst-1", chain, 0)

	_, err := l.Open("seller", 50)
	require.NoError(t, err)
	_, err = l.ProcessPayment(ctx, "buyer", "", 50)
	require.NoError(t, err)

	// A closed contract may be opened again with a fresh accumulator.
	_, err = l.Open("seller", 80)
	require.NoError(t, err)

	st, _ := l.Status()
	assert.True(t, st.IsOpen)
	assert.Equal(t, int64(0), st.ReceivedAmount)
	assert.Equal(t, int64(80), st.TargetAmount)
}

func TestListingInvalidAmount(t *testing.T) {
	ctx := context.Background()
	chain := memledger.New()
	l := NewListing("inst-1", chain, 0)

	_, err := l.Open("seller", 100)
	require.NoError(t, err)

	_, err = l.ProcessPayment(ctx, "buyer", "", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.ProcessPayment(ctx, "buyer", "", -5)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestListingPaymentBeforeOpen(t *testing.T) {
	l := NewListing("inst-1", memledger.New(), 0)
	_, err := l.ProcessPayment(context.Background(), "buyer", "", 10)
	assert.ErrorIs(t, err, domain.ErrNotOpen)

	_, msg := l.Status()
	assert.Equal(t, StatusNoListing, msg)
}

func TestListingSettlementFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("node unreachable")
	l := NewListing("inst-1", &failingLedger{err: boom}, 0)

	_, err := l.Open("seller", 100)
	require.NoError(t, err)

	_, err = l.ProcessPayment(ctx, "buyer", "", 40)
	var settleErr *domain.SettlementError
	require.ErrorAs(t, err, &settleErr)
	assert.ErrorIs(t, err, boom)

	st, _ := l.Status()
	assert.True(t, st.IsOpen)
	assert.Equal(t, int64(0), st.ReceivedAmount)
}

func TestListingManualCloseIdempotent(t *testing.T) {
	l := NewListing("inst-1", memledger.New(), 0)

	_, err := l.Close()
	assert.ErrorIs(t, err, domain.ErrNotOpen)

	_, err = l.Open("seller", 100)
	require.NoError(t, err)

	msg, err := l.Close()
	require.NoError(t, err)
	assert.Contains(t, msg, "closed")

	msg, err = l.Close()
	require.NoError(t, err)
	assert.Contains(t, msg, "already closed")
}

func TestListingMonotonicAccumulation(t *testing.T) {
	ctx := context.Background()
	chain := newFundedLedger(t, "buyer", 10_000)
	l := NewListing("inst-1", chain, 0)

	_, err := l.Open("seller", 1_000)
	require.NoError(t, err)

	var sum int64
	for _, amt := range []int64{100, 250, 50, 300} {
		_, err := l.ProcessPayment(ctx, "buyer", "", amt)
		require.NoError(t, err)
		sum += amt
		st, _ := l.Status()
		assert.Equal(t, sum, st.ReceivedAmount)
	}
}
