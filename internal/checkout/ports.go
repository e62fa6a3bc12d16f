package checkout

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/manucarbs/marketplace-backend/internal/orders"
)

// OrderStore is the order aggregate's persistence boundary, satisfied by
// orders.Repo and orders.MemoryStore.
type OrderStore interface {
	Create(ctx context.Context, buyerID string, shipping orders.ShippingInfo, items []orders.CartItem) (orders.Order, error)
	GetByNumber(ctx context.Context, number string) (orders.Order, error)
	SetPaymentRef(ctx context.Context, number, intentID string) error
	MarkPaid(ctx context.Context, number, paymentRef, method string, paidAt time.Time) error
	MarkCancelled(ctx context.Context, number string) error
	ListByBuyer(ctx context.Context, buyerID string) ([]orders.Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]orders.Order, error)
}

// CartStore is the external cart collaborator: the orchestrator reads the
// buyer's items at initiate time and clears them once the order is paid.
type CartStore interface {
	GetItems(ctx context.Context, buyerID string) ([]orders.CartItem, error)
	Clear(ctx context.Context, buyerID string) error
}

// Publisher matches the async kafka producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// StatusCache is the order status cache, satisfied by *redis.Client.
type StatusCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}
