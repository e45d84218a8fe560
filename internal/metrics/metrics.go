// Package metrics holds the checkout's Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/paycheckout/internal/domain"
)

var (
	// PaymentOutcomes counts settled payment attempts by rail and outcome kind.
	PaymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payment_outcomes_total",
			Help: "Total number of settled payment attempts",
		},
		[]string{"rail", "kind"},
	)

	// WalletGate counts wallet eligibility checks by result.
	WalletGate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_wallet_gate_total",
			Help: "Total number of wallet eligibility checks",
		},
		[]string{"result"},
	)

	// OutcomePublishErrors counts outcome events that could not be published.
	OutcomePublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_outcome_publish_errors_total",
			Help: "Total number of payment outcome events that failed to publish",
		},
	)
)

// Wallet gate results.
const (
	GateEligible    = "eligible"
	GateUnavailable = "unavailable"
	GateIneligible  = "ineligible"
	GateError       = "error"
)

// RecordOutcome counts o. A nil outcome is ignored.
func RecordOutcome(o *domain.Outcome) {
	if o == nil {
		return
	}
	PaymentOutcomes.WithLabelValues(string(o.Rail), string(o.Kind)).Inc()
}

// GateResult maps the wallet gate's error to a WalletGate label.
func GateResult(err error) string {
	switch {
	case err == nil:
		return GateEligible
	case errors.Is(err, domain.ErrWalletUnavailable):
		return GateUnavailable
	case errors.Is(err, domain.ErrWalletIneligible):
		return GateIneligible
	default:
		return GateError
	}
}

// RecordGate counts one wallet eligibility check.
func RecordGate(err error) {
	WalletGate.WithLabelValues(GateResult(err)).Inc()
}
