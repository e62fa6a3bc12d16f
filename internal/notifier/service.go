package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/manucarbs/marketplace-backend/internal/kafka"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/redisx"
)

// Service tells sellers about paid orders. Delivery is a log line standing in
// for the push/email integration; the dedup and consume mechanics are the
// real contract.
type Service struct {
	Redis *redis.Client
	Log   *zap.Logger
}

// HandleOrderPaid is wired as the consumer handler for the order.paid topic.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}

	// dedup by event id; kafka redelivery must not renotify sellers
	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, seller := range p.SellerIDs {
		s.Log.Info("seller sale notification",
			zap.String("seller_id", seller),
			zap.String("order_number", p.OrderNumber),
			zap.String("total", p.TotalAmount+" "+p.TotalCurrency))
	}

	return s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
}
