package stock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Ledger with the same batch and idempotency
// semantics as Repo. One mutex serializes check and subtract.
type Memory struct {
	mu      sync.Mutex
	stock   map[uuid.UUID]int
	commits map[string]string // order number -> commit status
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		stock:   make(map[uuid.UUID]int),
		commits: make(map[string]string),
	}
}

// Set seeds or overwrites the available quantity of a product.
func (m *Memory) Set(productID uuid.UUID, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = quantity
}

func (m *Memory) Available(productID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}

func (m *Memory) CheckAvailability(_ context.Context, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(items)
}

func (m *Memory) CommitDecrement(_ context.Context, orderNumber string, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commits[orderNumber] == commitStatusCommitted {
		return nil
	}
	if err := m.check(items); err != nil {
		return err
	}
	for _, it := range items {
		m.stock[it.ProductID] -= it.Quantity
	}
	m.commits[orderNumber] = commitStatusCommitted
	return nil
}

func (m *Memory) Restore(_ context.Context, orderNumber string, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commits[orderNumber] != commitStatusCommitted {
		return nil
	}
	for _, it := range items {
		m.stock[it.ProductID] += it.Quantity
	}
	m.commits[orderNumber] = commitStatusRestored
	return nil
}

// check must be called with the mutex held.
func (m *Memory) check(items []Item) error {
	for _, it := range items {
		available, ok := m.stock[it.ProductID]
		if !ok {
			return &InsufficientError{ProductID: it.ProductID, Available: 0, Requested: it.Quantity}
		}
		if available < it.Quantity {
			return &InsufficientError{ProductID: it.ProductID, Available: available, Requested: it.Quantity}
		}
	}
	return nil
}
