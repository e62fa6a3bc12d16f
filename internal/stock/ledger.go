// Package stock is the authoritative, concurrency-safe store of per-product
// available quantity. Quantities are mutated only through the Ledger.
package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

// InsufficientError names the first item of a batch that could not be
// satisfied. A missing product reports Available 0.
type InsufficientError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

const (
	commitStatusNew       = "NEW"
	commitStatusCommitted = "COMMITTED"
	commitStatusRestored  = "RESTORED"
)

// Ledger operations are batch-atomic: either every item of the batch is
// applied or none is. CommitDecrement and Restore are idempotent per order
// number, so a retried confirm call can never double-decrement or
// double-restore.
type Ledger interface {
	// CheckAvailability is an advisory read-only sufficiency check. The
	// answer may be stale by the time a commit runs; only CommitDecrement
	// enforces the no-oversell invariant.
	CheckAvailability(ctx context.Context, items []Item) error

	// CommitDecrement re-checks sufficiency under lock and subtracts.
	// Available quantity never goes below zero.
	CommitDecrement(ctx context.Context, orderNumber string, items []Item) error

	// Restore adds the quantities back. It is a no-op unless a decrement
	// was committed for the order and not restored yet.
	Restore(ctx context.Context, orderNumber string, items []Item) error
}
