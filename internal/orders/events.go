package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated           = "OrderCreated"
	EventOrderPaid              = "OrderPaid"
	EventOrderCancelled         = "OrderCancelled"
	EventReconciliationRequired = "ReconciliationRequired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order number
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event type ----

type OrderCreatedPayload struct {
	OrderNumber   string `json:"order_number"`
	BuyerID       string `json:"buyer_id"`
	ItemCount     int    `json:"item_count"`
	TotalAmount   string `json:"total_amount"`
	TotalCurrency string `json:"total_currency"`
}

type OrderPaidPayload struct {
	OrderNumber   string   `json:"order_number"`
	BuyerID       string   `json:"buyer_id"`
	PaymentRef    string   `json:"payment_ref"`
	TotalAmount   string   `json:"total_amount"`
	TotalCurrency string   `json:"total_currency"`
	SellerIDs     []string `json:"seller_ids"`
}

type OrderCancelledPayload struct {
	OrderNumber string `json:"order_number"`
	BuyerID     string `json:"buyer_id"`
	Reason      string `json:"reason"` // e.g. PAYMENT_FAILED, STALE_PENDING
}

// ShortfallItem names one product that could not be delivered.
type ShortfallItem struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// ReconciliationPayload reports the one fatal condition of the checkout flow:
// the payment settled but stock could not be committed, so the buyer must be
// refunded. Consumed by the manual refund queue.
type ReconciliationPayload struct {
	OrderNumber   string          `json:"order_number"`
	BuyerID       string          `json:"buyer_id"`
	PaymentRef    string          `json:"payment_ref"`
	TotalAmount   string          `json:"total_amount"`
	TotalCurrency string          `json:"total_currency"`
	Shortfall     []ShortfallItem `json:"shortfall,omitempty"`
}
