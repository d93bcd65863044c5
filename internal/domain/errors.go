package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyOpen   = errors.New("listing already open")
	ErrNotOpen       = errors.New("listing not open")
	ErrInvalidAmount = errors.New("payment amount must be positive")
	ErrNoListing     = errors.New("no listing for item")
	ErrLockHeld      = errors.New("lock already held")
)

// SettlementError wraps a ledger submission failure (network, insufficient
// balance, signature). The listing contract's received amount is never
// mutated when a SettlementError occurs, so contract state always reflects
// settled rather than attempted transfers.
type SettlementError struct {
	Op  string // the settlement step that failed, e.g. "submit payment"
	Err error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement: %s: %v", e.Op, e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}
