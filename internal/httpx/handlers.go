package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/manucarbs/marketplace-backend/internal/checkout"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/payments"
	"github.com/manucarbs/marketplace-backend/internal/stock"
)

// ProductLister serves the public catalog endpoint.
type ProductLister interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type CheckoutHandler struct {
	Service  *checkout.Service
	Products ProductLister
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/checkout", h.initiate)
		r.Post("/orders/{number}/confirm", h.confirm)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{number}", h.getOrder)
		r.Get("/orders/{number}/status", h.orderStatus)
		r.Get("/sales", h.listSales)
	})
}

type initiateRequest struct {
	Shipping orders.ShippingInfo `json:"shipping"`
}

type initiateResponse struct {
	OrderNumber  string `json:"order_number"`
	ClientSecret string `json:"client_secret"`
	Total        string `json:"total"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

func (h *CheckoutHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Service.Initiate(ctx, userID(r), req.Shipping)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, initiateResponse{
		OrderNumber:  res.OrderNumber,
		ClientSecret: res.ClientSecret,
		Total:        res.Total.Amount.String(),
		Currency:     res.Total.Currency.String(),
		Status:       string(orders.StatusPending),
	})
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

func (h *CheckoutHandler) confirm(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	var req confirmRequest
	if r.Body != nil {
		// body is optional; the recorded intent ref is used when absent
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.Confirm(ctx, userID(r), number, req.PaymentIntentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, userID(r), chi.URLParam(r, "number"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *CheckoutHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	number := chi.URLParam(r, "number")
	if status, ok := h.Service.CachedStatus(ctx, userID(r), number); ok {
		writeJSON(w, http.StatusOK, map[string]string{"order_number": number, "status": string(status)})
		return
	}

	o, err := h.Service.GetOrder(ctx, userID(r), number)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_number": o.Number, "status": string(o.Status)})
}

func (h *CheckoutHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	os, err := h.Service.ListOrders(ctx, userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(os, func(o orders.Order, _ int) orderView { return toOrderView(o) }))
}

func (h *CheckoutHandler) listSales(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	os, err := h.Service.ListSales(ctx, userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(os, func(o orders.Order, _ int) orderView { return toOrderView(o) }))
}

func (h *CheckoutHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(ps, func(p orders.Product, _ int) productView {
		return productView{
			ID:       p.ID.String(),
			Title:    p.Title,
			SellerID: p.SellerID,
			Price:    p.Price.Amount.String(),
			Currency: p.Price.Currency.String(),
			Stock:    p.Stock,
		}
	}))
}

type productView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SellerID string `json:"seller_id"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Stock    int    `json:"stock"`
}

type orderView struct {
	Number        string              `json:"order_number"`
	BuyerID       string              `json:"buyer_id"`
	Status        string              `json:"status"`
	Total         string              `json:"total"`
	Currency      string              `json:"currency"`
	Shipping      orders.ShippingInfo `json:"shipping"`
	Items         []itemView          `json:"items"`
	PaymentRef    string              `json:"payment_ref,omitempty"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
}

type itemView struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Currency  string `json:"currency"`
}

func toOrderView(o orders.Order) orderView {
	return orderView{
		Number:   o.Number,
		BuyerID:  o.BuyerID,
		Status:   string(o.Status),
		Total:    o.Total.Amount.String(),
		Currency: o.Total.Currency.String(),
		Shipping: o.Shipping,
		Items: lo.Map(o.Items, func(it orders.Item, _ int) itemView {
			return itemView{
				ProductID: it.ProductID.String(),
				SellerID:  it.SellerID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice.Amount.String(),
				Currency:  it.UnitPrice.Currency.String(),
			}
		}),
		PaymentRef:    o.PaymentRef,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
		PaidAt:        o.PaidAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps domain errors to HTTP codes. Insufficient stock and
// state conflicts are 409, an unsettled or failed payment is 402, a gateway
// outage is 503.
func writeDomainError(w http.ResponseWriter, err error) {
	var ise *stock.InsufficientError
	switch {
	case errors.As(err, &ise):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": ise.ProductID.String(),
			"available":  ise.Available,
			"requested":  ise.Requested,
		})
	case errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrShippingAddressRequired),
		errors.Is(err, orders.ErrShippingCityRequired),
		errors.Is(err, orders.ErrShippingPhoneRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, orders.ErrPaymentNotSettled),
		errors.Is(err, orders.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, orders.ErrNotPending),
		errors.Is(err, orders.ErrPaymentRefMismatch):
		writeError(w, http.StatusConflict, err.Error())
	case payments.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "payment gateway unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
