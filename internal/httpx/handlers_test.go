package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/manucarbs/marketplace-backend/internal/checkout"
	"github.com/manucarbs/marketplace-backend/internal/money"
	"github.com/manucarbs/marketplace-backend/internal/orders"
	"github.com/manucarbs/marketplace-backend/internal/payments"
	"github.com/manucarbs/marketplace-backend/internal/stock"
)

type fixture struct {
	router  *chi.Mux
	svc     *checkout.Service
	store   *orders.MemoryStore
	cart    *orders.MemoryCart
	ledger  *stock.Memory
	gateway *payments.Fake
}

func newFixture() *fixture {
	f := &fixture{
		store:   orders.NewMemoryStore(),
		cart:    orders.NewMemoryCart(),
		ledger:  stock.NewMemory(),
		gateway: payments.NewFake(),
	}
	f.svc = &checkout.Service{
		Orders:       f.store,
		Carts:        f.cart,
		Ledger:       f.ledger,
		Gateway:      f.gateway,
		Log:          zap.NewNop(),
		ServiceName:  "httpx-test",
		GatewayDelay: time.Millisecond,
	}
	f.router = NewRouter(zap.NewNop())
	(&CheckoutHandler{Service: f.svc, Products: f.store}).Register(f.router)
	return f
}

func (f *fixture) seedProduct(price string, stockQty int) orders.Product {
	p := orders.Product{
		ID:       uuid.New(),
		Title:    "gadget",
		SellerID: "seller-1",
		Price:    money.MustParse(price, "USD"),
		Stock:    stockQty,
	}
	f.store.PutProduct(p)
	f.ledger.Set(p.ID, stockQty)
	return p
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

var shippingBody = map[string]any{
	"shipping": map[string]string{
		"address": "Av. Arequipa 1234",
		"city":    "Lima",
		"phone":   "+51 999 888 777",
	},
}

func TestHealthz(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingIdentity(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/checkout", "", shippingBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/checkout", "buyer-1", shippingBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("10.00", 1)
	f.cart.Put("buyer-1", orders.CartItem{ProductID: p.ID, Quantity: 3})

	rec := f.do(t, http.MethodPost, "/checkout", "buyer-1", shippingBody)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, p.ID.String(), resp["product_id"])
	assert.EqualValues(t, 1, resp["available"])
	assert.EqualValues(t, 3, resp["requested"])
}

func TestCheckoutAndConfirmFlow(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("19.99", 5)
	f.cart.Put("buyer-1", orders.CartItem{ProductID: p.ID, Quantity: 2})

	rec := f.do(t, http.MethodPost, "/checkout", "buyer-1", shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	var initResp struct {
		OrderNumber  string `json:"order_number"`
		ClientSecret string `json:"client_secret"`
		Total        string `json:"total"`
		Status       string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))
	assert.NotEmpty(t, initResp.OrderNumber)
	assert.NotEmpty(t, initResp.ClientSecret)
	assert.Equal(t, "39.98", initResp.Total)
	assert.Equal(t, "PENDING", initResp.Status)

	// confirm before settlement
	rec = f.do(t, http.MethodPost, "/orders/"+initResp.OrderNumber+"/confirm", "buyer-1", nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// settle and confirm
	o, err := f.store.GetByNumber(context.Background(), initResp.OrderNumber)
	require.NoError(t, err)
	f.gateway.Settle(o.PaymentRef, payments.StatusSucceeded)

	rec = f.do(t, http.MethodPost, "/orders/"+initResp.OrderNumber+"/confirm", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Status string `json:"status"`
		Total  string `json:"total"`
		PaidAt string `json:"paid_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "PAID", view.Status)
	assert.Equal(t, "39.98", view.Total)
	assert.NotEmpty(t, view.PaidAt)
}

func TestGetOrderAuthorization(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("10.00", 5)
	f.cart.Put("buyer-1", orders.CartItem{ProductID: p.ID, Quantity: 1})

	rec := f.do(t, http.MethodPost, "/checkout", "buyer-1", shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var initResp struct {
		OrderNumber string `json:"order_number"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))

	rec = f.do(t, http.MethodGet, "/orders/"+initResp.OrderNumber, "buyer-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/orders/ORD-20260830-ZZZZZZ", "buyer-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/orders/"+initResp.OrderNumber, "buyer-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderStatusEndpoint(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("10.00", 5)
	f.cart.Put("buyer-1", orders.CartItem{ProductID: p.ID, Quantity: 1})

	rec := f.do(t, http.MethodPost, "/checkout", "buyer-1", shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var initResp struct {
		OrderNumber string `json:"order_number"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))

	rec = f.do(t, http.MethodGet, "/orders/"+initResp.OrderNumber+"/status", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp["status"])
}

type stubStatusCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (c *stubStatusCache) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := c.entries[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (c *stubStatusCache) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]string{}
	}
	c.entries[key] = fmt.Sprint(value)
	return redis.NewStatusCmd(ctx)
}

func TestOrderStatusCacheRespectsOwnership(t *testing.T) {
	f := newFixture()
	f.svc.Cache = &stubStatusCache{}
	p := f.seedProduct("10.00", 5)
	f.cart.Put("buyer-1", orders.CartItem{ProductID: p.ID, Quantity: 1})

	rec := f.do(t, http.MethodPost, "/checkout", "buyer-1", shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var initResp struct {
		OrderNumber string `json:"order_number"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))

	// a cached status must not leak another buyer's order
	rec = f.do(t, http.MethodGet, "/orders/"+initResp.OrderNumber+"/status", "buyer-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/orders/"+initResp.OrderNumber+"/status", "buyer-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp["status"])
}

func TestListProductsIsPublic(t *testing.T) {
	f := newFixture()
	f.seedProduct("10.00", 5)

	rec := f.do(t, http.MethodGet, "/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ps []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, "gadget", ps[0]["title"])
	assert.Equal(t, "10", ps[0]["price"])
}

func TestListSalesEndpoint(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("10.00", 5)
	f.cart.Put("buyer-1", orders.CartItem{ProductID: p.ID, Quantity: 1})

	rec := f.do(t, http.MethodPost, "/checkout", "buyer-1", shippingBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/sales", "seller-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sales []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sales))
	assert.Len(t, sales, 1)
}
