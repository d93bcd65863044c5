package notify

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

	"github.com/avencia/agentmarket/internal/domain"
)

type capturingSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (s *capturingSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func (s *capturingSender) Name() string { return "capturing" }

func (s *capturingSender) snapshot() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...), append([]string(nil), s.bodies...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherDeliversRecords(t *testing.T) {
	sender := &capturingSender{}
	notifier := NewNotifier([]Sender{sender}, nil, testLogger())
	d := NewDispatcher(notifier, 8, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	t.Cleanup(cancel)

	d.Offer(domain.DecisionRecord{
		ID:       "r1",
		AgentID:  "a1",
		ItemName: "camera",
		Decision: domain.VerdictBuy,
		TxID:     "tx-42",
	})
	d.Offer(domain.DecisionRecord{
		ID:            "r2",
		AgentID:       "a2",
		ItemName:      "lens",
		Decision:      domain.VerdictBuy,
		Settlement:    domain.SettlementFailed,
		SettlementErr: "insufficient balance",
	})

	require.Eventually(t, func() bool {
		titles, _ := sender.snapshot()
		return len(titles) == 2
	}, 2*time.Second, 10*time.Millisecond)

	titles, bodies := sender.snapshot()
	assert.Equal(t, "Purchase settled", titles[0])
	assert.Contains(t, bodies[0], "tx tx-42")
	assert.Equal(t, "Settlement failed", titles[1])
	assert.Contains(t, bodies[1], "insufficient balance")
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	notifier := NewNotifier(nil, nil, testLogger())
	d := NewDispatcher(notifier, 1, testLogger())
	// No Run loop: the buffer holds one record, the second is dropped.

	d.Offer(domain.DecisionRecord{ID: "r1"})
	d.Offer(domain.DecisionRecord{ID: "r2"})

	assert.Equal(t, int64(1), d.Dropped())
}

func TestNotifierEventFilter(t *testing.T) {
	sender := &capturingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{EventPurchase}, testLogger())

	ctx := context.Background()
	require.NoError(t, notifier.Notify(ctx, EventDecision, "Item ignored", "skip"))
	require.NoError(t, notifier.Notify(ctx, EventPurchase, "Purchase settled", "deliver"))

	titles, _ := sender.snapshot()
	require.Len(t, titles, 1)
	assert.Equal(t, "Purchase settled", titles[0])
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	good := &capturingSender{}
	bad := &capturingSender{err: errors.New("connection refused")}
	notifier := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := notifier.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")

	titles, _ := good.snapshot()
	assert.Len(t, titles, 1)
}
