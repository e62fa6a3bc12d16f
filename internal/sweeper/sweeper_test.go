package sweeper

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "github.com/manucarbs/marketplace-backend/internal/kafka"
	"github.com/manucarbs/marketplace-backend/internal/metrics"
	"github.com/manucarbs/marketplace-backend/internal/money"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/payments"
)

type capturePublisher struct {
	mu   sync.Mutex
	envs []orders.Envelope
}

func (p *capturePublisher) Publish(_ string, _, value []byte, _ ...kafkago.Header) {
	var env orders.Envelope
	_ = json.Unmarshal(value, &env)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
}

func (p *capturePublisher) all() []orders.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]orders.Envelope(nil), p.envs...)
}

func seedOrder(t *testing.T, store *orders.MemoryStore, buyerID string) orders.Order {
	t.Helper()
	p := orders.Product{
		ID:       uuid.New(),
		Title:    "thing",
		SellerID: "seller-1",
		Price:    money.MustParse("10.00", "USD"),
		Stock:    5,
	}
	store.PutProduct(p)

	o, err := store.Create(context.Background(), buyerID,
		orders.ShippingInfo{Address: "a", City: "b", Phone: "c"},
		[]orders.CartItem{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	return o
}

func TestSweepCancelsStalePending(t *testing.T) {
	ctx := context.Background()
	store := orders.NewMemoryStore()
	gw := payments.NewFake()
	pub := &capturePublisher{}

	stale := seedOrder(t, store, "buyer-1")
	intent, err := gw.CreateIntent(ctx, stale.Total, stale.Number)
	require.NoError(t, err)
	require.NoError(t, store.SetPaymentRef(ctx, stale.Number, intent.ID))

	s := &Sweeper{
		Orders:      store,
		Gateway:     gw,
		Producer:    pub,
		Metrics:     metrics.NewCheckout(prometheus.NewRegistry()),
		Log:         zap.NewNop(),
		ServiceName: "sweeper-test",
		PendingTTL:  -time.Hour, // everything pending counts as stale
	}
	require.NoError(t, s.Sweep(ctx))

	got, err := store.GetByNumber(ctx, stale.Number)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.True(t, gw.Cancelled(intent.ID), "the payment intent is voided")

	envs := pub.all()
	require.Len(t, envs, 1)
	assert.Equal(t, orders.EventOrderCancelled, envs[0].EventType)
	payload, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](envs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "STALE_PENDING", payload.Reason)
}

func TestSweepLeavesFreshAndPaidOrdersAlone(t *testing.T) {
	ctx := context.Background()
	store := orders.NewMemoryStore()
	pub := &capturePublisher{}

	fresh := seedOrder(t, store, "buyer-1")
	paid := seedOrder(t, store, "buyer-2")
	require.NoError(t, store.MarkPaid(ctx, paid.Number, "pi_1", "card", time.Now().UTC()))

	s := &Sweeper{
		Orders:      store,
		Producer:    pub,
		Log:         zap.NewNop(),
		ServiceName: "sweeper-test",
		PendingTTL:  time.Hour, // nothing is old enough yet
	}
	require.NoError(t, s.Sweep(ctx))

	gotFresh, err := store.GetByNumber(ctx, fresh.Number)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, gotFresh.Status)

	gotPaid, err := store.GetByNumber(ctx, paid.Number)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, gotPaid.Status)
	assert.Empty(t, pub.all())
}
