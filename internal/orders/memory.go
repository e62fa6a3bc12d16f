package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/manucarbs/marketplace-backend/internal/money"
)

// MemoryStore is an in-process order store with the same semantics as Repo,
// including the status guards on MarkPaid and MarkCancelled. It backs the
// orchestrator tests.
type MemoryStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]Product
	orders   map[string]*Order // by order number
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[uuid.UUID]Product),
		orders:   make(map[string]*Order),
	}
}

// PutProduct seeds or updates a catalog product.
func (s *MemoryStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := lo.Values(s.products)
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, buyerID string, shipping ShippingInfo, items []CartItem) (Order, error) {
	var o Order

	if len(items) == 0 {
		return o, ErrEmptyCart
	}
	if err := shipping.Validate(); err != nil {
		return o, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orderItems := make([]Item, 0, len(items))
	var total money.Money
	for i, it := range items {
		if it.Quantity <= 0 {
			return o, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
		p, ok := s.products[it.ProductID]
		if !ok {
			return o, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		orderItems = append(orderItems, Item{
			ProductID: it.ProductID,
			SellerID:  p.SellerID,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
		})

		line := p.Price.Mul(it.Quantity)
		if i == 0 {
			total = line
			continue
		}
		var err error
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
	s.orders[o.Number] = &o
	return cloneOrder(&o), nil
}

func (s *MemoryStore) GetByNumber(_ context.Context, number string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[number]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) SetPaymentRef(_ context.Context, number, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[number]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPending {
		return ErrNotPending
	}
	o.PaymentRef = intentID
	return nil
}

func (s *MemoryStore) MarkPaid(_ context.Context, number, paymentRef, method string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[number]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPending {
		return ErrNotPending
	}
	o.Status = StatusPaid
	o.PaymentRef = paymentRef
	o.PaymentMethod = method
	o.PaidAt = lo.ToPtr(paidAt)
	return nil
}

func (s *MemoryStore) MarkCancelled(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[number]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPending {
		return ErrNotPending
	}
	o.Status = StatusCancelled
	return nil
}

func (s *MemoryStore) ListByBuyer(_ context.Context, buyerID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListBySeller(_ context.Context, sellerID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, o := range s.orders {
		if lo.ContainsBy(o.Items, func(it Item) bool { return it.SellerID == sellerID }) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, o := range s.orders {
		if o.Status == StatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, cloneOrder(o))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneOrder(o *Order) Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return c
}

// MemoryCart is an in-process cart collaborator for tests.
type MemoryCart struct {
	mu    sync.Mutex
	items map[string][]CartItem // by buyer id
}

func NewMemoryCart() *MemoryCart {
	return &MemoryCart{items: make(map[string][]CartItem)}
}

func (c *MemoryCart) Put(buyerID string, items ...CartItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[buyerID] = append([]CartItem(nil), items...)
}

func (c *MemoryCart) GetItems(_ context.Context, buyerID string) ([]CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CartItem(nil), c.items[buyerID]...), nil
}

func (c *MemoryCart) Clear(_ context.Context, buyerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, buyerID)
	return nil
}
