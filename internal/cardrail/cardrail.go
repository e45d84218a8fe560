// Package cardrail drives the hosted card fields and PayPal buttons: it
// creates the order, hands it to the provider for authorization, captures it
// and turns the capture result into a buyer-facing outcome.
package cardrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/internal/guard"
	"github.com/utafrali/paycheckout/internal/result"
	"github.com/utafrali/paycheckout/pkg/logger"
)

// Buyer-facing messages.
const (
	MsgFormInvalid   = "The payment form is invalid"
	msgCreateFailed  = "Could not initiate PayPal Checkout..."
	msgCaptureFailed = "Sorry, your transaction could not be processed..."
)

// State is the controller's position in the card flow.
type State int

const (
	StateIdle State = iota
	StateFormFilled
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFormFilled:
		return "form_filled"
	case StateSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Gateway is the part of the order backend the card rail uses.
type Gateway interface {
	CreateOrder(ctx context.Context, cart domain.Cart) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (*domain.CaptureResult, error)
}

// FormState is what the hosted fields report about their inputs.
type FormState struct {
	Valid bool
	// Invalid lists the names of fields that failed the provider's checks.
	Invalid []string
}

// Restarter asks the provider UI to present itself again for a new attempt.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Approval is the provider's answer once the buyer authorized an order.
type Approval struct {
	OrderID string
	// CardTokenUsed is set when a vaulted card token paid, which a restart
	// cannot recover.
	CardTokenUsed bool
	// Restarter is nil when the provider offers no restart. Leave it unset
	// rather than storing a nil pointer: a typed nil counts as an offer.
	Restarter Restarter
}

// HostedFields is the provider's card-entry widget.
type HostedFields interface {
	State(ctx context.Context) (FormState, error)
	Authorize(ctx context.Context, orderID string, billing domain.BillingAddress) (Approval, error)
}

// Alerter shows a blocking message to the buyer.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// Recorder receives every settled outcome.
type Recorder interface {
	Record(ctx context.Context, o *domain.Outcome)
}

// Controller runs card payments for one checkout widget. It is safe for
// concurrent use; at most one submission is in flight at a time.
type Controller struct {
	gateway  Gateway
	fields   HostedFields
	guard    guard.Guard
	alerter  Alerter
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	cart    domain.Cart
	state   State
	billing domain.BillingAddress
	// attemptID ties a button-path CreateOrder to its OnApprove.
	attemptID string
}

// New creates a controller paying for cart.
func New(
	cart domain.Cart,
	gateway Gateway,
	fields HostedFields,
	g guard.Guard,
	alerter Alerter,
	recorder Recorder,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		gateway:  gateway,
		fields:   fields,
		guard:    g,
		alerter:  alerter,
		recorder: recorder,
		logger:   logger,
		cart:     cart.Clone(),
		state:    StateIdle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Billing returns a copy of the billing address entered so far.
func (c *Controller) Billing() domain.BillingAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.billing
}

// SubmitEnabled reports whether the pay button should accept a click.
func (c *Controller) SubmitEnabled() bool {
	return !c.guard.IsPaying()
}

// SetBillingField records one billing address field as the buyer types.
func (c *Controller) SetBillingField(field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.billing.SetField(field, value); err != nil {
		return err
	}
	if c.state == StateIdle {
		c.state = StateFormFilled
	}
	return nil
}

// Submit pays with the hosted card fields. It returns an error only when the
// submission was refused before it started; every started attempt settles
// into an outcome that has already been shown to the buyer and recorded.
func (c *Controller) Submit(ctx context.Context) (*domain.Outcome, error) {
	if c.guard.IsPaying() {
		return nil, domain.ErrAlreadyInFlight
	}

	ctx, attemptID := c.newAttempt(ctx)

	form, err := c.fields.State(ctx)
	if err != nil {
		return c.fatal(ctx, &domain.Outcome{AttemptID: attemptID, Err: err}, msgCaptureFailed+err.Error()), nil
	}
	if !form.Valid {
		c.alerter.Alert(ctx, MsgFormInvalid)
		o := &domain.Outcome{
			AttemptID: attemptID,
			Rail:      domain.RailCard,
			Kind:      domain.OutcomeFormInvalid,
			Message:   MsgFormInvalid,
			Err:       domain.ErrFormInvalid,
		}
		c.logFor(ctx).WarnContext(ctx, "payment form is invalid",
			slog.Any("invalid_fields", form.Invalid),
		)
		c.recorder.Record(ctx, o)
		return o, nil
	}

	if err := c.guard.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.guard.Release(ctx)

	c.mu.Lock()
	c.state = StateSubmitting
	billing := c.billing
	cart := c.cart.Clone()
	c.mu.Unlock()

	orderID, err := c.gateway.CreateOrder(ctx, cart)
	if err != nil {
		return c.createFailed(ctx, attemptID, err), nil
	}

	approval, err := c.fields.Authorize(ctx, orderID, billing)
	if err != nil {
		o := &domain.Outcome{AttemptID: attemptID, OrderID: orderID, Err: err}
		return c.fatal(ctx, o, msgCaptureFailed+err.Error()), nil
	}
	if approval.OrderID == "" {
		approval.OrderID = orderID
	}

	return c.approve(ctx, attemptID, approval), nil
}

// CreateOrder is the PayPal buttons createOrder callback. A failure is shown
// to the buyer and recorded before it is returned to the provider.
func (c *Controller) CreateOrder(ctx context.Context) (string, error) {
	ctx, attemptID := c.newAttempt(ctx)

	c.mu.Lock()
	cart := c.cart.Clone()
	c.mu.Unlock()

	orderID, err := c.gateway.CreateOrder(ctx, cart)
	if err != nil {
		c.createFailed(ctx, attemptID, err)
		return "", err
	}

	c.logFor(ctx).InfoContext(ctx, "order created",
		slog.String("order_id", orderID),
	)
	return orderID, nil
}

// OnApprove is the PayPal buttons onApprove callback: it captures the order
// and settles the attempt.
func (c *Controller) OnApprove(ctx context.Context, approval Approval) *domain.Outcome {
	c.mu.Lock()
	attemptID := c.attemptID
	c.mu.Unlock()
	if attemptID == "" {
		attemptID = uuid.NewString()
	}
	ctx = logger.WithAttempt(ctx, attemptID, string(domain.RailCard))

	return c.approve(ctx, attemptID, approval)
}

// OnProviderError records an error raised by the provider SDK outside of any
// callback the controller drives.
func (c *Controller) OnProviderError(ctx context.Context, err error) *domain.Outcome {
	if err == nil {
		return nil
	}

	c.mu.Lock()
	attemptID := c.attemptID
	c.state = StateIdle
	c.mu.Unlock()

	o := &domain.Outcome{
		AttemptID: attemptID,
		Rail:      domain.RailCard,
		Kind:      domain.OutcomeFatalError,
		Message:   err.Error(),
		Err:       err,
	}
	c.logFor(ctx).ErrorContext(ctx, "payment provider error",
		slog.String("error", err.Error()),
	)
	c.recorder.Record(ctx, o)
	return o
}

func (c *Controller) approve(ctx context.Context, attemptID string, approval Approval) *domain.Outcome {
	o := &domain.Outcome{AttemptID: attemptID, OrderID: approval.OrderID}

	res, err := c.gateway.CaptureOrder(ctx, approval.OrderID)
	if err != nil {
		o.Err = err
		return c.fatal(ctx, o, msgCaptureFailed+err.Error())
	}

	v := result.Interpret(res, result.Input{
		CardTokenUsed: approval.CardTokenUsed,
		CanRestart:    approval.Restarter != nil,
	})
	o.Transaction = v.Transaction
	o.Issue = v.Issue
	o.DebugID = v.DebugID

	switch v.Kind {
	case result.RecoverableDecline:
		return c.restart(ctx, o, approval.Restarter)
	case result.FatalError:
		o.Err = v.Err()
		return c.fatal(ctx, o, msgCaptureFailed+v.Message)
	default:
		return c.succeed(ctx, o, res)
	}
}

func (c *Controller) restart(ctx context.Context, o *domain.Outcome, r Restarter) *domain.Outcome {
	if err := r.Restart(ctx); err != nil {
		o.Err = fmt.Errorf("restart after decline: %w", err)
		return c.fatal(ctx, o, msgCaptureFailed+err.Error())
	}

	o.Rail = domain.RailCard
	o.Kind = domain.OutcomeRecoverableDecline
	o.Err = domain.ErrRecoverableDecline

	c.setState(StateFormFilled)
	c.logFor(ctx).WarnContext(ctx, "instrument declined, restarting payment",
		slog.String("order_id", o.OrderID),
		slog.String("issue", o.Issue),
		slog.String("debug_id", o.DebugID),
	)
	c.recorder.Record(ctx, o)
	return o
}

func (c *Controller) succeed(ctx context.Context, o *domain.Outcome, res *domain.CaptureResult) *domain.Outcome {
	tx := o.Transaction
	o.Rail = domain.RailCard
	o.Kind = domain.OutcomeSuccess
	o.Message = fmt.Sprintf("Transaction %s: %s.", tx.Status, tx.ID)

	c.setState(StateIdle)
	c.logFor(ctx).InfoContext(ctx, "capture result",
		slog.String("order_id", o.OrderID),
		slog.String("transaction_id", tx.ID),
		slog.String("transaction_status", tx.Status),
		slog.String("response", string(res.Raw)),
	)
	c.alerter.Alert(ctx, fmt.Sprintf("Transaction %s: %s. See console for details.", tx.Status, tx.ID))
	c.recorder.Record(ctx, o)
	return o
}

func (c *Controller) createFailed(ctx context.Context, attemptID string, err error) *domain.Outcome {
	o := &domain.Outcome{AttemptID: attemptID, Err: err}
	var createErr *domain.OrderCreationError
	if errors.As(err, &createErr) {
		o.Issue = createErr.Issue
		o.DebugID = createErr.DebugID
	}
	return c.fatal(ctx, o, msgCreateFailed+err.Error())
}

// fatal settles o as a fatal error: the buyer sees message, operators get the cause.
func (c *Controller) fatal(ctx context.Context, o *domain.Outcome, message string) *domain.Outcome {
	o.Rail = domain.RailCard
	o.Kind = domain.OutcomeFatalError
	o.Message = message

	c.setState(StateIdle)

	attrs := []any{
		slog.String("order_id", o.OrderID),
		slog.String("issue", o.Issue),
		slog.String("debug_id", o.DebugID),
	}
	if o.Err != nil {
		attrs = append(attrs, slog.String("error", o.Err.Error()))
	}
	c.logFor(ctx).ErrorContext(ctx, "payment failed", attrs...)

	c.alerter.Alert(ctx, message)
	c.recorder.Record(ctx, o)
	return o
}

func (c *Controller) newAttempt(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	c.mu.Lock()
	c.attemptID = id
	c.mu.Unlock()
	return logger.WithAttempt(ctx, id, string(domain.RailCard)), id
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) logFor(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}
