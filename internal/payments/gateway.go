// Package payments wraps the external payment authority. The gateway is the
// single source of truth for whether money moved; the orchestrator only ever
// creates intents and polls their settlement status.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/manucarbs/marketplace-backend/internal/money"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Intent is the gateway-issued handle for a charge. The client secret is
// handed to the buyer's client to complete payment out-of-band.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type Gateway interface {
	// CreateIntent registers a chargeable intent for a positive amount.
	// The order number travels as correlation metadata so every intent
	// traces back to exactly one order.
	CreateIntent(ctx context.Context, amount money.Money, orderNumber string) (Intent, error)

	// SettlementStatus may be polled repeatedly; once settled the answer
	// is stable.
	SettlementStatus(ctx context.Context, intentID string) (Status, error)

	// CancelIntent voids an intent that will never be confirmed.
	CancelIntent(ctx context.Context, intentID string) error
}

var ErrInvalidAmount = errors.New("payments: amount must be positive")

// GatewayError distinguishes transient faults (retryable: timeouts, 5xx)
// from permanent ones (invalid request, declined).
type GatewayError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("payments: %s: %s gateway error: %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}
