package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/manucarbs/marketplace-backend/internal/money"
)

// Fake is a scriptable in-process Gateway for tests.
type Fake struct {
	mu          sync.Mutex
	statuses    map[string]Status
	statusCalls map[string]int
	cancelled   map[string]bool

	CreateErr error // returned by the next CreateIntent calls when set
	StatusErr error // returned by the next SettlementStatus calls when set
}

var _ Gateway = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		statuses:    make(map[string]Status),
		statusCalls: make(map[string]int),
		cancelled:   make(map[string]bool),
	}
}

func (f *Fake) CreateIntent(_ context.Context, amount money.Money, orderNumber string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return Intent{}, f.CreateErr
	}
	if !amount.IsPositive() {
		return Intent{}, &GatewayError{Op: "create_intent", Transient: false, Err: ErrInvalidAmount}
	}

	id := "pi_" + uuid.NewString()
	f.statuses[id] = StatusPending
	return Intent{ID: id, ClientSecret: id + "_secret_" + orderNumber}, nil
}

func (f *Fake) SettlementStatus(_ context.Context, intentID string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls[intentID]++
	if f.StatusErr != nil {
		return "", f.StatusErr
	}

	status, ok := f.statuses[intentID]
	if !ok {
		return "", &GatewayError{Op: "settlement_status", StatusCode: 404, Transient: false,
			Err: fmt.Errorf("unknown intent %s", intentID)}
	}
	return status, nil
}

func (f *Fake) CancelIntent(_ context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled[intentID] = true
	f.statuses[intentID] = StatusFailed
	return nil
}

// Settle scripts the settlement outcome of an intent.
func (f *Fake) Settle(intentID string, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[intentID] = status
}

func (f *Fake) StatusCalls(intentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[intentID]
}

func (f *Fake) Cancelled(intentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[intentID]
}
