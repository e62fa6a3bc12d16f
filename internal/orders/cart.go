package orders

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRepo is the boundary to the cart collaborator. The orchestrator only
// reads a buyer's items and clears them after a paid checkout; cart CRUD
// lives elsewhere.
type CartRepo struct{ DB *pgxpool.Pool }

func (r *CartRepo) GetItems(ctx context.Context, buyerID string) ([]CartItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, qty FROM cart_items WHERE buyer_id=$1 ORDER BY added_at DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var out []CartItem
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *CartRepo) Clear(ctx context.Context, buyerID string) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id=$1`, buyerID); err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}
