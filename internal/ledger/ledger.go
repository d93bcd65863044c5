// Package ledger defines the adapter interface through which the marketplace
// talks to a distributed ledger: balance queries, block scanning, and signed
// payment submission. Concrete backends live in the evm and memledger
// sub-packages.
package ledger

import (
	"context"
	"time"
)

// Transaction is a ledger payment observed in a block. Note carries the
// auxiliary data payload used for application message passing.
type Transaction struct {
	ID       string
	Sender   string
	Receiver string
	Amount   int64
	Note     []byte
}

// Block is one ledger round.
type Block struct {
	Height       uint64
	Timestamp    time.Time
	Transactions []Transaction
}

// Payment is a transfer to be signed and submitted. SenderSecret is the
// signing credential for the sender wallet; it never leaves the adapter.
type Payment struct {
	Sender       string
	SenderSecret string
	Receiver     string
	Amount       int64
	Note         []byte
}

// Client is the ledger adapter consumed by the listing contract, the event
// poller, and the HTTP surface. Every call is a suspension point and should
// be given a bounded context by the caller.
type Client interface {
	// CurrentHeight returns the height of the latest committed block.
	CurrentHeight(ctx context.Context) (uint64, error)

	// GetBlock returns the block at the given height.
	GetBlock(ctx context.Context, height uint64) (Block, error)

	// AccountBalance returns the spendable balance of an address in the
	// smallest currency unit.
	AccountBalance(ctx context.Context, address string) (int64, error)

	// SubmitPayment signs and submits a payment, returning the transaction
	// id once the ledger has accepted it.
	SubmitPayment(ctx context.Context, p Payment) (string, error)
}
