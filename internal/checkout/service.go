package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/manucarbs/marketplace-backend/internal/kafka"
	"github.com/manucarbs/marketplace-backend/internal/metrics"
	"github.com/manucarbs/marketplace-backend/internal/money"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/payments"
	"github.com/manucarbs/marketplace-backend/internal/redisx"
	"github.com/manucarbs/marketplace-backend/internal/stock"
)

const (
	defaultPaymentMethod = "card"
	defaultRetryAttempts = 3
	defaultRetryDelay    = 200 * time.Millisecond
)

// Service orchestrates the two-phase checkout: Initiate freezes a PENDING
// order snapshot and requests a payment intent; Confirm, once the gateway
// reports settlement, commits the stock decrement and marks the order PAID.
// Phase 1 never decrements stock: an unpaid checkout must not starve other
// buyers. The no-oversell invariant is enforced solely by the ledger at
// Confirm time.
type Service struct {
	Orders   OrderStore
	Carts    CartStore
	Ledger   stock.Ledger
	Gateway  payments.Gateway
	Producer Publisher
	Cache    StatusCache
	Metrics  *metrics.Checkout
	Log      *zap.Logger

	ServiceName     string
	GatewayAttempts int
	GatewayDelay    time.Duration
}

type InitiateResult struct {
	OrderNumber  string
	ClientSecret string
	Total        money.Money
}

// Initiate is Phase 1. The stock check here is advisory only and may be
// stale by Confirm time.
func (s *Service) Initiate(ctx context.Context, buyerID string, shipping orders.ShippingInfo) (InitiateResult, error) {
	var res InitiateResult

	if err := shipping.Validate(); err != nil {
		s.countInitiated("invalid_shipping")
		return res, err
	}

	items, err := s.Carts.GetItems(ctx, buyerID)
	if err != nil {
		return res, fmt.Errorf("read cart: %w", err)
	}
	if len(items) == 0 {
		s.countInitiated("empty_cart")
		return res, orders.ErrEmptyCart
	}

	if err := s.Ledger.CheckAvailability(ctx, cartStockItems(items)); err != nil {
		s.countInitiated("insufficient_stock")
		return res, err
	}

	order, err := s.Orders.Create(ctx, buyerID, shipping, items)
	if err != nil {
		s.countInitiated("create_failed")
		return res, err
	}

	log := s.logger().With(zap.String("order_number", order.Number), zap.String("buyer_id", buyerID))

	var intent payments.Intent
	err = payments.Retry(ctx, s.attempts(), s.delay(), func() error {
		var cerr error
		intent, cerr = s.Gateway.CreateIntent(ctx, order.Total, order.Number)
		return cerr
	})
	if err != nil {
		if payments.IsTransient(err) {
			// order stays PENDING; the sweeper cancels it if the buyer
			// never comes back
			log.Warn("payment intent creation unavailable", zap.Error(err))
			s.countInitiated("gateway_unavailable")
			return res, err
		}
		log.Error("payment intent rejected, cancelling order", zap.Error(err))
		if cerr := s.Orders.MarkCancelled(ctx, order.Number); cerr != nil {
			log.Error("cancel order after intent rejection", zap.Error(cerr))
		}
		s.publishCancelled(order, "payment_intent_rejected")
		s.cacheStatus(ctx, buyerID, order.Number, orders.StatusCancelled)
		s.countInitiated("gateway_rejected")
		return res, err
	}

	if err := s.Orders.SetPaymentRef(ctx, order.Number, intent.ID); err != nil {
		// Confirm accepts the intent id from the client as well
		log.Warn("record payment ref", zap.Error(err))
	}

	s.publishCreated(order)
	s.cacheStatus(ctx, buyerID, order.Number, orders.StatusPending)
	s.countInitiated("ok")
	log.Info("checkout initiated",
		zap.String("intent_id", intent.ID),
		zap.String("total", order.Total.String()),
		zap.Int("items", len(order.Items)))

	return InitiateResult{
		OrderNumber:  order.Number,
		ClientSecret: intent.ClientSecret,
		Total:        order.Total,
	}, nil
}

// Confirm is Phase 2. It is idempotent: confirming an already-PAID order
// returns it unchanged and decrements nothing.
func (s *Service) Confirm(ctx context.Context, buyerID, orderNumber, intentID string) (orders.Order, error) {
	var zero orders.Order

	o, err := s.Orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return zero, err
	}
	if o.BuyerID != buyerID {
		return zero, orders.ErrUnauthorized
	}

	switch o.Status {
	case orders.StatusPaid:
		s.countConfirmed("idempotent_replay")
		return o, nil
	case orders.StatusCancelled:
		return zero, orders.ErrNotPending
	}

	if intentID == "" {
		intentID = o.PaymentRef
	}
	if intentID == "" || (o.PaymentRef != "" && intentID != o.PaymentRef) {
		return zero, orders.ErrPaymentRefMismatch
	}
	if o.PaymentRef == "" {
		if err := s.Orders.SetPaymentRef(ctx, o.Number, intentID); err != nil && !errors.Is(err, orders.ErrNotPending) {
			return zero, fmt.Errorf("record payment ref: %w", err)
		}
	}

	log := s.logger().With(
		zap.String("order_number", o.Number),
		zap.String("buyer_id", buyerID),
		zap.String("intent_id", intentID))

	// No stock lock is held while waiting on the gateway.
	var status payments.Status
	err = payments.Retry(ctx, s.attempts(), s.delay(), func() error {
		var serr error
		status, serr = s.Gateway.SettlementStatus(ctx, intentID)
		return serr
	})
	if err != nil {
		if payments.IsTransient(err) {
			s.countConfirmed("gateway_unavailable")
			return zero, err
		}
		log.Error("settlement query rejected, cancelling order", zap.Error(err))
		s.cancelPending(ctx, o, "payment_failed", log)
		s.countConfirmed("gateway_rejected")
		return zero, err
	}

	switch status {
	case payments.StatusSucceeded:
		// fall through to the stock commit
	case payments.StatusPending:
		s.countConfirmed("not_settled")
		return zero, orders.ErrPaymentNotSettled
	default:
		log.Info("payment failed, cancelling order")
		s.cancelPending(ctx, o, "payment_failed", log)
		s.countConfirmed("payment_failed")
		return zero, orders.ErrPaymentFailed
	}

	items := orderStockItems(o.Items)
	if err := s.Ledger.CommitDecrement(ctx, o.Number, items); err != nil {
		var ise *stock.InsufficientError
		if errors.As(err, &ise) {
			// Money moved but the goods are gone: the one fatal case.
			// Report it loudly and queue the refund.
			s.reportReconciliation(ctx, o, intentID, ise, log)
			s.cancelPending(ctx, o, "out_of_stock", log)
			s.countConfirmed("insufficient_stock")
			return zero, err
		}
		s.countConfirmed("stock_error")
		return zero, fmt.Errorf("commit stock: %w", err)
	}

	paidAt := time.Now().UTC()
	if err := s.Orders.MarkPaid(ctx, o.Number, intentID, defaultPaymentMethod, paidAt); err != nil {
		if errors.Is(err, orders.ErrNotPending) {
			// Lost the race. If a concurrent confirm won, the order is PAID
			// and the ledger already holds exactly one commit for it.
			fresh, gerr := s.Orders.GetByNumber(ctx, o.Number)
			if gerr == nil && fresh.Status == orders.StatusPaid {
				s.countConfirmed("idempotent_replay")
				return fresh, nil
			}
			// Cancelled meanwhile (sweeper): give the units back.
			if rerr := s.Ledger.Restore(ctx, o.Number, items); rerr != nil {
				log.Error("restore stock after lost race", zap.Error(rerr))
			}
			return zero, orders.ErrNotPending
		}
		// Persistence failed after the decrement: compensate before
		// surfacing so a retried confirm starts clean.
		if rerr := s.Ledger.Restore(ctx, o.Number, items); rerr != nil {
			log.Error("restore stock after failed state write", zap.Error(rerr))
		}
		s.countConfirmed("mark_paid_failed")
		return zero, fmt.Errorf("mark paid: %w", err)
	}

	o.Status = orders.StatusPaid
	o.PaymentRef = intentID
	o.PaymentMethod = defaultPaymentMethod
	o.PaidAt = &paidAt

	if err := s.Carts.Clear(ctx, buyerID); err != nil {
		log.Warn("clear cart", zap.Error(err))
	}

	s.publishPaid(o)
	s.cacheStatus(ctx, o.BuyerID, o.Number, orders.StatusPaid)
	s.countConfirmed("paid")
	log.Info("order paid", zap.String("total", o.Total.String()))

	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, buyerID, orderNumber string) (orders.Order, error) {
	o, err := s.Orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return orders.Order{}, err
	}
	if o.BuyerID != buyerID {
		return orders.Order{}, orders.ErrUnauthorized
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, buyerID string) ([]orders.Order, error) {
	return s.Orders.ListByBuyer(ctx, buyerID)
}

// ListSales returns the orders in which the caller sold at least one item.
func (s *Service) ListSales(ctx context.Context, sellerID string) ([]orders.Order, error) {
	return s.Orders.ListBySeller(ctx, sellerID)
}

// CachedStatus serves the cheap status lookup without touching postgres.
// The key is scoped to the owning buyer, so a lookup by anyone else misses
// and falls through to the authorized read.
func (s *Service) CachedStatus(ctx context.Context, buyerID, orderNumber string) (orders.Status, bool) {
	if s.Cache == nil {
		return "", false
	}
	v, err := s.Cache.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, buyerID, orderNumber)).Result()
	if err != nil || v == "" {
		return "", false
	}
	return orders.Status(v), true
}

// cancelPending moves a pending order to CANCELLED and publishes the event.
// A concurrent transition is fine; terminal states never change again.
func (s *Service) cancelPending(ctx context.Context, o orders.Order, reason string, log *zap.Logger) {
	if err := s.Orders.MarkCancelled(ctx, o.Number); err != nil {
		if !errors.Is(err, orders.ErrNotPending) {
			log.Error("cancel order", zap.Error(err))
		}
		return
	}
	s.publishCancelled(o, reason)
	s.cacheStatus(ctx, o.BuyerID, o.Number, orders.StatusCancelled)
}

func (s *Service) reportReconciliation(ctx context.Context, o orders.Order, intentID string, ise *stock.InsufficientError, log *zap.Logger) {
	log.Error("payment settled but stock commit failed, refund required",
		zap.String("product_id", ise.ProductID.String()),
		zap.Int("available", ise.Available),
		zap.Int("requested", ise.Requested),
		zap.String("total", o.Total.String()))

	if s.Metrics != nil {
		s.Metrics.ReconciliationRequired.Inc()
	}

	s.publish(orders.TopicReconciliation, orders.EventReconciliationRequired, o.Number,
		orders.ReconciliationPayload{
			OrderNumber:   o.Number,
			BuyerID:       o.BuyerID,
			PaymentRef:    intentID,
			TotalAmount:   o.Total.Amount.String(),
			TotalCurrency: o.Total.Currency.String(),
			Shortfall: []orders.ShortfallItem{{
				ProductID: ise.ProductID.String(),
				Requested: ise.Requested,
				Available: ise.Available,
			}},
		})
}

func (s *Service) publishCreated(o orders.Order) {
	s.publish(orders.TopicOrderCreated, orders.EventOrderCreated, o.Number, orders.OrderCreatedPayload{
		OrderNumber:   o.Number,
		BuyerID:       o.BuyerID,
		ItemCount:     len(o.Items),
		TotalAmount:   o.Total.Amount.String(),
		TotalCurrency: o.Total.Currency.String(),
	})
}

func (s *Service) publishPaid(o orders.Order) {
	sellers := lo.Uniq(lo.Map(o.Items, func(it orders.Item, _ int) string { return it.SellerID }))
	s.publish(orders.TopicOrderPaid, orders.EventOrderPaid, o.Number, orders.OrderPaidPayload{
		OrderNumber:   o.Number,
		BuyerID:       o.BuyerID,
		PaymentRef:    o.PaymentRef,
		TotalAmount:   o.Total.Amount.String(),
		TotalCurrency: o.Total.Currency.String(),
		SellerIDs:     sellers,
	})
}

func (s *Service) publishCancelled(o orders.Order, reason string) {
	s.publish(orders.TopicOrderCancelled, orders.EventOrderCancelled, o.Number, orders.OrderCancelledPayload{
		OrderNumber: o.Number,
		BuyerID:     o.BuyerID,
		Reason:      reason,
	})
}

func (s *Service) publish(topic, eventType, orderNumber string, payload any) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderNumber,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Producer.Publish(topic, orders.PartitionKey(orderNumber), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) cacheStatus(ctx context.Context, buyerID, orderNumber string, status orders.Status) {
	if s.Cache == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, buyerID, orderNumber)
	if err := s.Cache.Set(ctx, key, string(status), redisx.TTLStatusCache).Err(); err != nil {
		s.logger().Warn("cache order status", zap.String("order_number", orderNumber), zap.Error(err))
	}
}

func (s *Service) countInitiated(outcome string) {
	if s.Metrics != nil {
		s.Metrics.Initiated.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countConfirmed(outcome string) {
	if s.Metrics != nil {
		s.Metrics.Confirmed.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

func (s *Service) attempts() int {
	if s.GatewayAttempts > 0 {
		return s.GatewayAttempts
	}
	return defaultRetryAttempts
}

func (s *Service) delay() time.Duration {
	if s.GatewayDelay > 0 {
		return s.GatewayDelay
	}
	return defaultRetryDelay
}

func cartStockItems(items []orders.CartItem) []stock.Item {
	return lo.Map(items, func(it orders.CartItem, _ int) stock.Item {
		return stock.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	})
}

func orderStockItems(items []orders.Item) []stock.Item {
	return lo.Map(items, func(it orders.Item, _ int) stock.Item {
		return stock.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	})
}
