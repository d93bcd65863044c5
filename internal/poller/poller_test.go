package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/decide"
	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger"
	"github.com/avencia/agentmarket/internal/ledger/memledger"
)

type fixedDecider struct {
	mu       sync.Mutex
	decision decide.Decision
	err      error
}

func (d *fixedDecider) Decide(ctx context.Context, agent domain.Agent, item domain.Item) (decide.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decision, d.err
}

func (d *fixedDecider) set(decision decide.Decision, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decision, d.err = decision, err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPoller(t *testing.T, chain ledger.Client, decider decide.Engine) *Poller {
	t.Helper()
	p := New(chain, decider, nil, Config{
		TrackedWallet: "shop",
		WalletSecret:  "shop-secret",
		Interval:      10 * time.Millisecond,
		Responder:     domain.Agent{Prompt: "answer inquiries about cameras"},
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Run(ctx) }()
	t.Cleanup(cancel)
	return p
}

// findReply scans blocks committed after fromHeight for a note whose Ref
// matches the given transaction id.
func findReply(t *testing.T, chain *memledger.Ledger, fromHeight uint64, ref string) (ledger.Transaction, *ledger.Message) {
	t.Helper()
	var (
		replyTx  ledger.Transaction
		replyMsg *ledger.Message
	)
	require.Eventually(t, func() bool {
		ctx := context.Background()
		height, err := chain.CurrentHeight(ctx)
		if err != nil {
			return false
		}
		for h := fromHeight + 1; h <= height; h++ {
			blk, err := chain.GetBlock(ctx, h)
			if err != nil {
				return false
			}
			for _, tx := range blk.Transactions {
				if msg := ledger.DecodeNote(tx.Note); msg != nil && msg.Ref == ref {
					replyTx = tx
					replyMsg = msg
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	return replyTx, replyMsg
}

func TestPollerRepliesToQuery(t *testing.T) {
	chain := memledger.New()
	chain.Fund("customer", 1_000)
	chain.Fund("shop", 1_000)

	decider := &fixedDecider{decision: decide.Decision{
		Verdict:   domain.VerdictBuy,
		Reasoning: "matches the camera inquiry",
	}}
	p := startPoller(t, chain, decider)

	require.Eventually(t, p.Running, time.Second, 5*time.Millisecond)

	note, err := ledger.EncodeNote(ledger.Message{
		Type: ledger.MessageQuery,
		Body: "do you stock vintage cameras",
	})
	require.NoError(t, err)

	inTx, err := chain.SubmitPayment(context.Background(), ledger.Payment{
		Sender:   "customer",
		Receiver: "shop",
		Amount:   10,
		Note:     note,
	})
	require.NoError(t, err)

	replyTx, replyMsg := findReply(t, chain, 0, inTx)
	assert.Equal(t, "shop", replyTx.Sender)
	assert.Equal(t, "customer", replyTx.Receiver)
	assert.Equal(t, ledger.MessageQuery, replyMsg.Type)
	assert.Contains(t, replyMsg.Body, "BUY")
	assert.Contains(t, replyMsg.Body, "camera inquiry")
}

func TestPollerSkipsForeignAndUnparseableTraffic(t *testing.T) {
	chain := memledger.New()
	chain.Fund("customer", 1_000)
	chain.Fund("shop", 1_000)

	decider := &fixedDecider{decision: decide.Decision{Verdict: domain.VerdictIgnore}}
	p := startPoller(t, chain, decider)
	require.Eventually(t, p.Running, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	// Payment to an unrelated wallet.
	_, err := chain.SubmitPayment(ctx, ledger.Payment{
		Sender: "customer", Receiver: "other", Amount: 5,
		Note: []byte(`{"type":"QUERY","body":"hello"}`),
	})
	require.NoError(t, err)
	// Payment to the shop with an unrecognizable note.
	_, err = chain.SubmitPayment(ctx, ledger.Payment{
		Sender: "customer", Receiver: "shop", Amount: 5,
		Note: []byte("thanks for the coffee"),
	})
	require.NoError(t, err)

	// Let several poll rounds pass, then confirm no reply was committed.
	time.Sleep(100 * time.Millisecond)
	height, err := chain.CurrentHeight(ctx)
	require.NoError(t, err)
	for h := uint64(1); h <= height; h++ {
		blk, err := chain.GetBlock(ctx, h)
		require.NoError(t, err)
		for _, tx := range blk.Transactions {
			assert.NotEqual(t, "shop", tx.Sender)
		}
	}
}

func TestPollerSurvivesDeciderFailure(t *testing.T) {
	chain := memledger.New()
	chain.Fund("customer", 1_000)
	chain.Fund("shop", 1_000)

	decider := &fixedDecider{err: errors.New("model unavailable")}
	p := startPoller(t, chain, decider)
	require.Eventually(t, p.Running, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	note, err := ledger.EncodeNote(ledger.Message{Type: ledger.MessageQuery, Body: "anything"})
	require.NoError(t, err)
	badTx, err := chain.SubmitPayment(ctx, ledger.Payment{
		Sender: "customer", Receiver: "shop", Amount: 5, Note: note,
	})
	require.NoError(t, err)
	_ = badTx

	// The failed message is skipped; a later message still gets answered.
	decider.set(decide.Decision{Verdict: domain.VerdictIgnore, Reasoning: "no"}, nil)

	goodTx, err := chain.SubmitPayment(ctx, ledger.Payment{
		Sender: "customer", Receiver: "shop", Amount: 5, Note: note,
	})
	require.NoError(t, err)

	_, replyMsg := findReply(t, chain, 0, goodTx)
	assert.Contains(t, replyMsg.Body, "IGNORE")
}

func TestPollerStops(t *testing.T) {
	chain := memledger.New()
	p := New(chain, &fixedDecider{}, nil, Config{
		TrackedWallet: "shop",
		Interval:      5 * time.Millisecond,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, p.Running, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
	assert.False(t, p.Running())
}
