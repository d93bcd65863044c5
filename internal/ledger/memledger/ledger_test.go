package memledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/ledger"
)

func TestSubmitPaymentMovesBalance(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Fund("alice", 1_000)

	txID, err := l.SubmitPayment(ctx, ledger.Payment{
		Sender: "alice", Receiver: "bob", Amount: 400, Note: []byte("x"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	aliceBal, err := l.AccountBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(600), aliceBal)

	bobBal, err := l.AccountBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(400), bobBal)
}

func TestSubmitPaymentInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Fund("alice", 10)

	_, err := l.SubmitPayment(ctx, ledger.Payment{Sender: "alice", Receiver: "bob", Amount: 11})
	require.Error(t, err)

	bal, err := l.AccountBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
}

func TestBlocksAdvancePerPayment(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Fund("alice", 100)

	h0, err := l.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h0)

	_, err = l.SubmitPayment(ctx, ledger.Payment{Sender: "alice", Receiver: "bob", Amount: 5})
	require.NoError(t, err)
	_, err = l.SubmitPayment(ctx, ledger.Payment{Sender: "alice", Receiver: "carol", Amount: 7})
	require.NoError(t, err)

	h, err := l.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h)

	blk, err := l.GetBlock(ctx, 2)
	require.NoError(t, err)
	require.Len(t, blk.Transactions, 1)
	assert.Equal(t, "carol", blk.Transactions[0].Receiver)
	assert.Equal(t, int64(7), blk.Transactions[0].Amount)

	_, err = l.GetBlock(ctx, 3)
	assert.Error(t, err)
}
