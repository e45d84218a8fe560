// Package simulate provides scripted stand-ins for the payment provider's
// client-side widgets: hosted card fields, buttons, the native wallet sheet
// and the wallet bridge. They are used by tests and by the smoke CLI.
package simulate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/utafrali/paycheckout/internal/cardrail"
	"github.com/utafrali/paycheckout/internal/domain"
)

// Restarter counts how often the provider UI was asked to present itself again.
type Restarter struct {
	Err   error
	calls atomic.Int32
}

// Restart records the call and returns the scripted error.
func (r *Restarter) Restart(_ context.Context) error {
	r.calls.Add(1)
	return r.Err
}

// Calls returns the number of restarts requested.
func (r *Restarter) Calls() int {
	return int(r.calls.Load())
}

// HostedFields plays the provider's card-entry widget. The buyer is assumed
// to authorize every order handed to it unless AuthorizeErr is set.
type HostedFields struct {
	// Invalid names the fields the widget reports as invalid. A non-empty
	// list makes the form invalid.
	Invalid       []string
	StateErr      error
	AuthorizeErr  error
	CardTokenUsed bool
	// Restartable attaches Restarter to every approval.
	Restartable bool
	Restarter   *Restarter

	mu         sync.Mutex
	authorized []string
	billing    []domain.BillingAddress
}

var _ cardrail.HostedFields = (*HostedFields)(nil)

// NewHostedFields returns valid fields whose approvals can be restarted.
func NewHostedFields() *HostedFields {
	return &HostedFields{Restartable: true, Restarter: &Restarter{}}
}

// State reports the scripted form validity.
func (h *HostedFields) State(_ context.Context) (cardrail.FormState, error) {
	if h.StateErr != nil {
		return cardrail.FormState{}, h.StateErr
	}
	return cardrail.FormState{
		Valid:   len(h.Invalid) == 0,
		Invalid: append([]string(nil), h.Invalid...),
	}, nil
}

// Authorize approves orderID on behalf of the buyer.
func (h *HostedFields) Authorize(ctx context.Context, orderID string, billing domain.BillingAddress) (cardrail.Approval, error) {
	if err := ctx.Err(); err != nil {
		return cardrail.Approval{}, err
	}

	h.mu.Lock()
	h.authorized = append(h.authorized, orderID)
	h.billing = append(h.billing, billing)
	h.mu.Unlock()

	if h.AuthorizeErr != nil {
		return cardrail.Approval{}, h.AuthorizeErr
	}

	approval := cardrail.Approval{OrderID: orderID, CardTokenUsed: h.CardTokenUsed}
	if h.Restartable && h.Restarter != nil {
		approval.Restarter = h.Restarter
	}
	return approval, nil
}

// Authorized returns the order ids handed to the widget, oldest first.
func (h *HostedFields) Authorized() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.authorized...)
}

// LastBilling returns the billing address sent with the latest authorization.
func (h *HostedFields) LastBilling() (domain.BillingAddress, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.billing) == 0 {
		return domain.BillingAddress{}, false
	}
	return h.billing[len(h.billing)-1], true
}

// ButtonFlow is the pair of callbacks the PayPal buttons drive.
type ButtonFlow interface {
	CreateOrder(ctx context.Context) (string, error)
	OnApprove(ctx context.Context, approval cardrail.Approval) *domain.Outcome
	OnProviderError(ctx context.Context, err error) *domain.Outcome
}

// Buttons plays the PayPal buttons popup.
type Buttons struct {
	CardTokenUsed bool
	Restarter     cardrail.Restarter
	// PopupErr makes the popup fail after the order was created, as when the
	// buyer's provider session errors out.
	PopupErr error
}

// Click runs one button payment: create the order, let the buyer approve it
// and hand the approval back. A create failure has already been reported by
// the flow and is returned as is.
func (b *Buttons) Click(ctx context.Context, flow ButtonFlow) (*domain.Outcome, error) {
	orderID, err := flow.CreateOrder(ctx)
	if err != nil {
		return nil, err
	}
	if b.PopupErr != nil {
		return flow.OnProviderError(ctx, b.PopupErr), nil
	}
	return flow.OnApprove(ctx, cardrail.Approval{
		OrderID:       orderID,
		CardTokenUsed: b.CardTokenUsed,
		Restarter:     b.Restarter,
	}), nil
}
