package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/manucarbs/marketplace-backend/internal/money"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, buyer_id, address, city, phone, reference,
	total_amount::text, total_currency, status, payment_ref, payment_method, created_at, paid_at`

// Create persists a new PENDING order with a frozen price/seller snapshot.
// Unit prices and seller ids are read from the products table inside the
// transaction; the total is computed server-side and never trusted from
// client input.
func (r *Repo) Create(ctx context.Context, buyerID string, shipping ShippingInfo, items []CartItem) (Order, error) {
	var o Order

	if len(items) == 0 {
		return o, ErrEmptyCart
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return o, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
	}
	if err := shipping.Validate(); err != nil {
		return o, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return o, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	productIDs := lo.Map(items, func(it CartItem, _ int) uuid.UUID { return it.ProductID })

	rows, err := tx.Query(ctx, `
		SELECT id, seller_id, price_amount::text, price_currency
		FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return o, fmt.Errorf("select products: %w", err)
	}

	type snapshot struct {
		sellerID string
		price    money.Money
	}
	snapshots := make(map[uuid.UUID]snapshot, len(items))
	for rows.Next() {
		var (
			id               uuid.UUID
			sellerID         string
			amount, currency string
		)
		if err := rows.Scan(&id, &sellerID, &amount, &currency); err != nil {
			rows.Close()
			return o, fmt.Errorf("scan product: %w", err)
		}
		price, err := money.Parse(amount, currency)
		if err != nil {
			rows.Close()
			return o, fmt.Errorf("parse price: %w", err)
		}
		snapshots[id] = snapshot{sellerID: sellerID, price: price}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return o, fmt.Errorf("select products: %w", err)
	}

	orderItems := make([]Item, 0, len(items))
	var total money.Money
	for i, it := range items {
		snap, ok := snapshots[it.ProductID]
		if !ok {
			return o, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		orderItems = append(orderItems, Item{
			ProductID: it.ProductID,
			SellerID:  snap.sellerID,
			Quantity:  it.Quantity,
			UnitPrice: snap.price,
		})

		line := snap.price.Mul(it.Quantity)
		if i == 0 {
			total = line
			continue
		}
		total, err = total.Add(line)
		if err != nil {
			return o, fmt.Errorf("compute total: %w", err)
		}
	}

	now := time.Now().UTC()
	o = Order{
		ID:        uuid.New(),
		Number:    NewNumber(now),
		BuyerID:   buyerID,
		Shipping:  shipping,
		Items:     orderItems,
		Total:     total,
		Status:    StatusPending,
		CreatedAt: now,
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, buyer_id, address, city, phone, reference,
			total_amount, total_currency, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.Number, o.BuyerID, o.Shipping.Address, o.Shipping.City, o.Shipping.Phone, o.Shipping.Reference,
		o.Total.Amount.String(), o.Total.Currency.String(), string(o.Status), o.CreatedAt,
	); err != nil {
		return o, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, seller_id, qty, unit_price_amount, unit_price_currency)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, it.SellerID, it.Quantity, it.UnitPrice.Amount.String(), it.UnitPrice.Currency.String(),
		); err != nil {
			return o, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return o, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`, number)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{o.ID})
	if err != nil {
		return o, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// SetPaymentRef records the payment intent created for a pending order.
// An order keeps at most one active payment reference.
func (r *Repo) SetPaymentRef(ctx context.Context, number, intentID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_ref=$2 WHERE order_number=$1 AND status=$3`,
		number, intentID, string(StatusPending))
	if err != nil {
		return fmt.Errorf("update payment_ref: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkPaid transitions PENDING -> PAID. The status guard in the WHERE clause
// makes the transition race-safe: of two concurrent confirms exactly one
// sees RowsAffected() == 1.
func (r *Repo) MarkPaid(ctx context.Context, number, paymentRef, method string, paidAt time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, payment_ref=$3, payment_method=$4, paid_at=$5
		WHERE order_number=$1 AND status=$6`,
		number, string(StatusPaid), paymentRef, method, paidAt, string(StatusPending))
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkCancelled transitions PENDING -> CANCELLED, same guard as MarkPaid.
func (r *Repo) MarkCancelled(ctx context.Context, number string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2 WHERE order_number=$1 AND status=$3`,
		number, string(StatusCancelled), string(StatusPending))
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *Repo) ListByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return r.collectOrders(ctx, rows)
}

// ListBySeller returns orders containing at least one item sold by the seller.
func (r *Repo) ListBySeller(ctx context.Context, sellerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT DISTINCT `+orderColumns+`
		FROM orders JOIN order_items ON order_items.order_id = orders.id
		WHERE order_items.seller_id=$1
		ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return r.collectOrders(ctx, rows)
}

// ListStalePending returns pending orders created before the cutoff,
// oldest first. Items are not loaded; the sweeper never touches stock.
func (r *Repo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, string(StatusPending), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, title, seller_id, price_amount::text, price_currency, stock, created_at, updated_at
		FROM products ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var (
			p                pgProduct
			amount, currency string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.SellerID, &amount, &currency, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		price, err := money.Parse(amount, currency)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		out = append(out, Product{
			ID: p.ID, Title: p.Title, SellerID: p.SellerID, Price: price,
			Stock: p.Stock, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		})
	}
	return out, rows.Err()
}

type pgProduct struct {
	ID        uuid.UUID
	Title     string
	SellerID  string
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Repo) collectOrders(ctx context.Context, rows pgx.Rows) ([]Order, error) {
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := lo.Map(out, func(o Order, _ int) uuid.UUID { return o.ID })
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *Repo) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, seller_id, qty, unit_price_amount::text, unit_price_currency
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID          uuid.UUID
			it               Item
			amount, currency string
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.SellerID, &it.Quantity, &amount, &currency); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.UnitPrice, err = money.Parse(amount, currency)
		if err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                     Order
		amount, currency      string
		status                string
		paymentRef, payMethod *string
	)
	err := row.Scan(&o.ID, &o.Number, &o.BuyerID,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.Phone, &o.Shipping.Reference,
		&amount, &currency, &status, &paymentRef, &payMethod, &o.CreatedAt, &o.PaidAt)
	if err != nil {
		return o, err
	}

	o.Total, err = money.Parse(amount, currency)
	if err != nil {
		return o, fmt.Errorf("parse total: %w", err)
	}
	o.Status = Status(status)
	o.PaymentRef = lo.FromPtr(paymentRef)
	o.PaymentMethod = lo.FromPtr(payMethod)
	return o, nil
}
