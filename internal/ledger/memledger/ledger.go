// Package memledger implements ledger.Client with an in-memory simulated
// chain. Every accepted payment is committed in its own block, which keeps
// block scanning deterministic in tests and in dev mode.
package memledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avencia/agentmarket/internal/ledger"
)

// Ledger is an in-memory chain. The zero height is the genesis block, which
// carries no transactions.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
	blocks   []ledger.Block
}

// New creates an empty in-memory ledger with only a genesis block.
func New() *Ledger {
	return &Ledger{
		balances: make(map[string]int64),
		blocks:   []ledger.Block{{Height: 0, Timestamp: time.Now().UTC()}},
	}
}

// Fund credits an address without recording a transaction. It stands in for
// wallet funding that would happen out of band on a real chain.
func (l *Ledger) Fund(address string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[address] += amount
}

// CurrentHeight returns the height of the latest committed block.
func (l *Ledger) CurrentHeight(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks[len(l.blocks)-1].Height, nil
}

// GetBlock returns the block at the given height.
func (l *Ledger) GetBlock(ctx context.Context, height uint64) (ledger.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if height >= uint64(len(l.blocks)) {
		return ledger.Block{}, fmt.Errorf("memledger: block %d not found", height)
	}
	return l.blocks[height], nil
}

// AccountBalance returns the spendable balance of an address.
func (l *Ledger) AccountBalance(ctx context.Context, address string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address], nil
}

// SubmitPayment validates the payment against the sender's balance and
// commits it in a new block.
func (l *Ledger) SubmitPayment(ctx context.Context, p ledger.Payment) (string, error) {
	if p.Amount <= 0 {
		return "", fmt.Errorf("memledger: non-positive amount %d", p.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[p.Sender] < p.Amount {
		return "", fmt.Errorf("memledger: insufficient balance for %s: have %d, need %d",
			p.Sender, l.balances[p.Sender], p.Amount)
	}

	l.balances[p.Sender] -= p.Amount
	l.balances[p.Receiver] += p.Amount

	tx := ledger.Transaction{
		ID:       uuid.New().String(),
		Sender:   p.Sender,
		Receiver: p.Receiver,
		Amount:   p.Amount,
		Note:     p.Note,
	}
	l.blocks = append(l.blocks, ledger.Block{
		Height:       uint64(len(l.blocks)),
		Timestamp:    time.Now().UTC(),
		Transactions: []ledger.Transaction{tx},
	})

	return tx.ID, nil
}
