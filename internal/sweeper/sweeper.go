package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/manucarbs/marketplace-backend/internal/kafka"
	"github.com/manucarbs/marketplace-backend/internal/metrics"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/payments"
)

const batchSize = 100

// OrderStore is the slice of the order repository the sweeper needs.
type OrderStore interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]orders.Order, error)
	MarkCancelled(ctx context.Context, number string) error
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Sweeper cancels PENDING orders whose buyer never completed payment.
// Pending orders hold no stock, so cancellation is a pure state change
// plus a best-effort void of the payment intent.
type Sweeper struct {
	Orders   OrderStore
	Gateway  payments.Gateway
	Producer Publisher
	Metrics  *metrics.Checkout
	Log      *zap.Logger

	ServiceName string
	PendingTTL  time.Duration
	Interval    time.Duration
}

// Run sweeps on every tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger().Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep cancels one batch of stale pending orders.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.PendingTTL)
	stale, err := s.Orders.ListStalePending(ctx, cutoff, batchSize)
	if err != nil {
		return err
	}

	for _, o := range stale {
		log := s.logger().With(zap.String("order_number", o.Number))

		if err := s.Orders.MarkCancelled(ctx, o.Number); err != nil {
			// A concurrent confirm won; leave the order alone.
			if errors.Is(err, orders.ErrNotPending) {
				continue
			}
			log.Error("cancel stale order", zap.Error(err))
			continue
		}

		if o.PaymentRef != "" && s.Gateway != nil {
			if err := s.Gateway.CancelIntent(ctx, o.PaymentRef); err != nil {
				log.Warn("void payment intent", zap.String("intent_id", o.PaymentRef), zap.Error(err))
			}
		}

		s.publishCancelled(o)
		if s.Metrics != nil {
			s.Metrics.SweptOrders.Inc()
		}
		log.Info("stale pending order cancelled",
			zap.Time("created_at", o.CreatedAt),
			zap.String("total", o.Total.String()))
	}
	return nil
}

func (s *Sweeper) publishCancelled(o orders.Order) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCancelled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.Number,
		Payload: kafkax.MustMarshal(orders.OrderCancelledPayload{
			OrderNumber: o.Number,
			BuyerID:     o.BuyerID,
			Reason:      "STALE_PENDING",
		}),
	}
	s.Producer.Publish(orders.TopicOrderCancelled, orders.PartitionKey(o.Number), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Sweeper) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
