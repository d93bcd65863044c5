// Package contract implements the per-item listing state machine and the
// manager that owns one contract instance per item. The listing accumulates
// buyer payments toward a target amount and closes itself the moment the
// target is reached; its operations return human-readable status strings
// that callers pattern-match on, so the exact phrasing is part of the
// contract.
package contract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger"
)

// listingState is the lifecycle position of a Listing.
type listingState int

const (
	stateUninitialized listingState = iota
	stateOpen
	stateClosed
)

// StatusNoListing is returned by Status when the contract was never opened.
const StatusNoListing = "no listing"

// Listing is one contract instance. All transitions are guarded by a single
// mutex, so payments can never interleave into a double close or a lost
// update. The received amount is only advanced after the ledger transfer
// succeeds; a failed settlement leaves the state machine untouched.
type Listing struct {
	ID string

	mu           sync.Mutex
	state        listingState
	targetWallet string
	targetAmount int64
	received     int64

	chain       ledger.Client
	callTimeout time.Duration
}

// NewListing creates a contract instance in the UNINITIALIZED state.
// callTimeout bounds each ledger submission so a hung node cannot stall the
// caller indefinitely; zero disables the bound.
func NewListing(id string, chain ledger.Client, callTimeout time.Duration) *Listing {
	return &Listing{
		ID:          id,
		chain:       chain,
		callTimeout: callTimeout,
	}
}

// Open transitions the listing to OPEN. It is valid from UNINITIALIZED or
// CLOSED and resets the received amount; reopening an already open listing
// fails with domain.ErrAlreadyOpen.
func (l *Listing) Open(targetWallet string, targetAmount int64) (string, error) {
	if targetAmount <= 0 {
		return "", domain.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == stateOpen {
		return "", domain.ErrAlreadyOpen
	}

	l.state = stateOpen
	l.targetWallet = targetWallet
	l.targetAmount = targetAmount
	l.received = 0

	return fmt.Sprintf("Listing opened for %s, target %d", targetWallet, targetAmount), nil
}

// ProcessPayment forwards amount from the buyer to the target wallet and
// applies it to the running total. A payment that brings the total to the
// target (or past it; overshoot is accepted) closes the listing in the same
// operation.
func (l *Listing) ProcessPayment(ctx context.Context, buyerWallet, buyerSecret string, amount int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateOpen {
		return "", domain.ErrNotOpen
	}
	if amount <= 0 {
		return "", domain.ErrInvalidAmount
	}

	txID, err := l.submit(ctx, ledger.Payment{
		Sender:       buyerWallet,
		SenderSecret: buyerSecret,
		Receiver:     l.targetWallet,
		Amount:       amount,
	})
	if err != nil {
		return "", &domain.SettlementError{Op: "submit payment", Err: err}
	}

	l.received += amount
	if l.received >= l.targetAmount {
		l.state = stateClosed
		return fmt.Sprintf("Listing closed: target reached at %d/%d (tx %s)",
			l.received, l.targetAmount, txID), nil
	}
	return fmt.Sprintf("Payment accepted: %d/%d (tx %s)", l.received, l.targetAmount, txID), nil
}

// submit performs the ledger call with a bounded timeout and a single retry
// after a short pause. The retry covers transient transport failures without
// letting a hung ledger deadlock the drain loop.
func (l *Listing) submit(ctx context.Context, p ledger.Payment) (string, error) {
	txID, err := l.submitOnce(ctx, p)
	if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return txID, err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return l.submitOnce(ctx, p)
}

func (l *Listing) submitOnce(ctx context.Context, p ledger.Payment) (string, error) {
	if l.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.callTimeout)
		defer cancel()
	}
	return l.chain.SubmitPayment(ctx, p)
}

// Status returns a snapshot of the listing. The string form is "no listing"
// for an uninitialized contract.
func (l *Listing) Status() (domain.ListingStatus, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == stateUninitialized {
		return domain.ListingStatus{InstanceID: l.ID}, StatusNoListing
	}

	st := domain.ListingStatus{
		InstanceID:     l.ID,
		IsOpen:         l.state == stateOpen,
		TargetWallet:   l.targetWallet,
		TargetAmount:   l.targetAmount,
		ReceivedAmount: l.received,
	}
	if st.IsOpen {
		return st, fmt.Sprintf("Listing open: %d/%d", l.received, l.targetAmount)
	}
	return st, fmt.Sprintf("Listing closed: %d/%d", l.received, l.targetAmount)
}

// Close transitions an open listing to CLOSED. Calling it on an already
// closed listing is an idempotent no-op.
func (l *Listing) Close() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateUninitialized:
		return "", domain.ErrNotOpen
	case stateClosed:
		return fmt.Sprintf("Listing already closed at %d/%d", l.received, l.targetAmount), nil
	}

	l.state = stateClosed
	return fmt.Sprintf("Listing closed manually at %d/%d", l.received, l.targetAmount), nil
}
