package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo enforces the no-oversell invariant with per-product row locks:
// check and subtract happen inside one transaction, so two concurrent
// commits against the same unit of stock serialize on FOR UPDATE.
type Repo struct{ DB *pgxpool.Pool }

var _ Ledger = (*Repo)(nil)

func (r *Repo) CheckAvailability(ctx context.Context, items []Item) error {
	for _, it := range items {
		if it.Quantity <= 0 {
			return fmt.Errorf("stock: invalid quantity %d for product %s", it.Quantity, it.ProductID)
		}

		var available int
		err := r.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, it.ProductID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return &InsufficientError{ProductID: it.ProductID, Available: 0, Requested: it.Quantity}
		}
		if err != nil {
			return fmt.Errorf("select stock: %w", err)
		}
		if available < it.Quantity {
			return &InsufficientError{ProductID: it.ProductID, Available: available, Requested: it.Quantity}
		}
	}
	return nil
}

func (r *Repo) CommitDecrement(ctx context.Context, orderNumber string, items []Item) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The commit record doubles as the idempotency key: a second confirm of
	// the same order sees COMMITTED and does nothing. The row must exist
	// before FOR UPDATE can serialize on it (locking a missing row locks
	// nothing), so seed a placeholder first.
	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_commits(order_number, status) VALUES ($1, $2)
		ON CONFLICT (order_number) DO NOTHING
	`, orderNumber, commitStatusNew); err != nil {
		return fmt.Errorf("seed stock_commits: %w", err)
	}

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM stock_commits WHERE order_number=$1 FOR UPDATE`,
		orderNumber).Scan(&status); err != nil {
		return fmt.Errorf("lock stock_commits: %w", err)
	}
	if status == commitStatusCommitted {
		return tx.Commit(ctx)
	}
	// NEW: first commit for this order. RESTORED: a previous confirm was
	// compensated, decrement again below.

	for _, it := range items {
		var available int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return &InsufficientError{ProductID: it.ProductID, Available: 0, Requested: it.Quantity}
		}
		if err != nil {
			return fmt.Errorf("lock stock: %w", err)
		}
		if available < it.Quantity {
			// rollback via defer: nothing of the batch is applied
			return &InsufficientError{ProductID: it.ProductID, Available: available, Requested: it.Quantity}
		}

		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE stock_commits SET status=$2, updated_at=now() WHERE order_number=$1`,
		orderNumber, commitStatusCommitted); err != nil {
		return fmt.Errorf("record commit: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repo) Restore(ctx context.Context, orderNumber string, items []Item) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM stock_commits WHERE order_number=$1 FOR UPDATE`,
		orderNumber).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && status != commitStatusCommitted) {
		// nothing to compensate, rollback via defer
		return nil
	}
	if err != nil {
		return fmt.Errorf("select stock_commits: %w", err)
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE stock_commits SET status=$2, updated_at=now() WHERE order_number=$1`,
		orderNumber, commitStatusRestored); err != nil {
		return fmt.Errorf("record restore: %w", err)
	}

	return tx.Commit(ctx)
}
