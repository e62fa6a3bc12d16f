package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/manucarbs/marketplace-backend/internal/money"
)

// HTTPGateway talks JSON to the payment processor's REST API. Amounts are
// sent in minor units, the processor's convention.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Gateway = (*HTTPGateway)(nil)

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type createIntentRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	OrderNumber string `json:"order_number"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status"`
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, amount money.Money, orderNumber string) (Intent, error) {
	if !amount.IsPositive() {
		return Intent{}, &GatewayError{Op: "create_intent", Transient: false, Err: ErrInvalidAmount}
	}

	body := createIntentRequest{
		AmountMinor: amount.MinorUnits(),
		Currency:    amount.Currency.String(),
		OrderNumber: orderNumber,
	}

	var resp intentResponse
	if err := g.do(ctx, "create_intent", http.MethodPost, "/v1/payment_intents", body, &resp); err != nil {
		return Intent{}, err
	}
	return Intent{ID: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

func (g *HTTPGateway) SettlementStatus(ctx context.Context, intentID string) (Status, error) {
	var resp intentResponse
	if err := g.do(ctx, "settlement_status", http.MethodGet, "/v1/payment_intents/"+intentID, nil, &resp); err != nil {
		return "", err
	}

	switch resp.Status {
	case "succeeded":
		return StatusSucceeded, nil
	case "pending", "processing", "requires_payment_method", "requires_confirmation":
		return StatusPending, nil
	default:
		// canceled, payment_failed and anything unknown is terminal
		return StatusFailed, nil
	}
}

func (g *HTTPGateway) CancelIntent(ctx context.Context, intentID string) error {
	return g.do(ctx, "cancel_intent", http.MethodPost, "/v1/payment_intents/"+intentID+"/cancel", nil, nil)
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("payments: %s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Transient: true,
			Err: fmt.Errorf("gateway returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Transient: false,
			Err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Op: op, Transient: true, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
