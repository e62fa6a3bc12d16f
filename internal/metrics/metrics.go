package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Checkout holds the orchestrator's counters. ReconciliationRequired is the
// operator-visible one: money moved but goods could not be committed, so a
// refund is owed.
type Checkout struct {
	Initiated              *prometheus.CounterVec
	Confirmed              *prometheus.CounterVec
	SweptOrders            prometheus.Counter
	ReconciliationRequired prometheus.Counter
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	c := &Checkout{
		Initiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "checkout",
			Name:      "initiated_total",
			Help:      "Checkout initiations by outcome.",
		}, []string{"outcome"}),
		Confirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "checkout",
			Name:      "confirmed_total",
			Help:      "Payment confirmations by outcome.",
		}, []string{"outcome"}),
		SweptOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "checkout",
			Name:      "swept_orders_total",
			Help:      "Stale pending orders cancelled by the sweeper.",
		}),
		ReconciliationRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "checkout",
			Name:      "reconciliation_required_total",
			Help:      "Settled payments whose stock commit failed; each one needs a refund.",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.Initiated, c.Confirmed, c.SweptOrders, c.ReconciliationRequired)
	}
	return c
}
