package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/pkg/logger"
)

// MsgPaymentSuccessful is shown to the buyer once the sheet closes successfully.
const MsgPaymentSuccessful = "Payment successful!"

// State is a payment sheet's position in the wallet flow.
type State int

const (
	StateCreated State = iota
	StateValidatingMerchant
	StateSelectingMethod
	StateAuthorizing
	StateCompleting
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateCreated:            "created",
	StateValidatingMerchant: "validating_merchant",
	StateSelectingMethod:    "selecting_method",
	StateAuthorizing:        "authorizing",
	StateCompleting:         "completing",
	StateCompleted:          "completed",
	StateFailed:             "failed",
	StateCancelled:          "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal reports whether the sheet has closed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// transitions lists the states each callback may start from.
var transitions = map[string][]State{
	"validate_merchant": {StateCreated},
	"select_method":     {StateSelectingMethod},
	"authorize":         {StateSelectingMethod},
	"cancel":            {StateCreated, StateValidatingMerchant, StateSelectingMethod},
}

// Session is the controller for one payment sheet. Callbacks are serialized;
// an event arriving in the wrong state is rejected with
// domain.ErrIllegalTransition and changes nothing.
type Session struct {
	id      string
	rail    *Rail
	native  NativeSession
	request domain.PaymentRequest

	mu      sync.Mutex
	state   State
	orderID string
	outcome *domain.Outcome
}

// ID returns the attempt id of the session.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Request returns the payment request the sheet was built from.
func (s *Session) Request() domain.PaymentRequest {
	return s.request
}

// Outcome returns the settled outcome, or nil while the sheet is open.
func (s *Session) Outcome() *domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// OnValidateMerchant exchanges the platform's validation URL for a merchant
// session. On failure the sheet is aborted and no order is created.
func (s *Session) OnValidateMerchant(ctx context.Context, validationURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = s.context(ctx)
	if err := s.transition(ctx, "validate_merchant", StateValidatingMerchant); err != nil {
		return err
	}

	merchantSession, err := s.rail.bridge.ValidateMerchant(ctx, validationURL)
	if err != nil {
		s.native.Abort()
		err = fmt.Errorf("%w: %w", domain.ErrMerchantValidation, err)
		s.fail(ctx, err)
		return err
	}

	s.native.CompleteMerchantValidation(merchantSession)
	s.state = StateSelectingMethod
	return nil
}

// OnPaymentMethodSelected reconfirms the unchanged total.
func (s *Session) OnPaymentMethodSelected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = s.context(ctx)
	if err := s.transition(ctx, "select_method", StateSelectingMethod); err != nil {
		return err
	}

	s.native.CompletePaymentMethodSelection(s.request.Total)
	return nil
}

// OnPaymentAuthorized creates, confirms and captures the order in that order.
// s.mu is held across the whole chain; see NativeSession.
// Any failure closes the sheet with StatusFailure; nothing is retried.
func (s *Session) OnPaymentAuthorized(ctx context.Context, payment Payment) (*domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = s.context(ctx)
	if err := s.transition(ctx, "authorize", StateAuthorizing); err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, payment); err != nil {
		s.native.CompletePayment(StatusFailure)
		return s.fail(ctx, err), nil
	}

	s.state = StateCompleting
	s.native.CompletePayment(StatusSuccess)
	s.state = StateCompleted

	s.outcome = &domain.Outcome{
		AttemptID: s.id,
		Rail:      domain.RailWallet,
		Kind:      domain.OutcomeSuccess,
		OrderID:   s.orderID,
		Message:   MsgPaymentSuccessful,
	}
	s.log(ctx).InfoContext(ctx, "wallet payment completed",
		slog.String("order_id", s.orderID),
	)
	s.rail.alerter.Alert(ctx, MsgPaymentSuccessful)
	s.rail.recorder.Record(ctx, s.outcome)
	return s.outcome, nil
}

// OnCancel closes the sheet before authorization. Nothing needs undoing.
func (s *Session) OnCancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = s.context(ctx)
	if err := s.transition(ctx, "cancel", StateCancelled); err != nil {
		return err
	}

	s.outcome = &domain.Outcome{
		AttemptID: s.id,
		Rail:      domain.RailWallet,
		Kind:      domain.OutcomeCancelled,
	}
	s.log(ctx).InfoContext(ctx, "wallet payment cancelled")
	s.rail.recorder.Record(ctx, s.outcome)
	return nil
}

func (s *Session) authorize(ctx context.Context, payment Payment) error {
	orderID, err := s.rail.gateway.CreateWalletOrder(ctx, s.rail.cart)
	if err != nil {
		return fmt.Errorf("create wallet order: %w", err)
	}
	s.orderID = orderID

	err = s.rail.bridge.ConfirmOrder(ctx, ConfirmRequest{
		OrderID:         orderID,
		Token:           payment.Token,
		BillingContact:  payment.BillingContact,
		ShippingContact: payment.ShippingContact,
	})
	if err != nil {
		return fmt.Errorf("confirm wallet order: %w", err)
	}

	if err := s.rail.gateway.CaptureWalletOrder(ctx, orderID); err != nil {
		return fmt.Errorf("capture wallet order: %w", err)
	}
	return nil
}

// transition moves to next if event is allowed from the current state.
// Callers hold s.mu.
func (s *Session) transition(ctx context.Context, event string, next State) error {
	for _, from := range transitions[event] {
		if s.state == from {
			s.state = next
			return nil
		}
	}

	s.log(ctx).WarnContext(ctx, "rejected wallet session event",
		slog.String("event", event),
		slog.String("state", s.state.String()),
	)
	return fmt.Errorf("%w: %s in state %s", domain.ErrIllegalTransition, event, s.state)
}

// fail settles the session as failed. Callers hold s.mu.
func (s *Session) fail(ctx context.Context, err error) *domain.Outcome {
	s.state = StateFailed
	s.outcome = &domain.Outcome{
		AttemptID: s.id,
		Rail:      domain.RailWallet,
		Kind:      domain.OutcomeFatalError,
		OrderID:   s.orderID,
		Message:   err.Error(),
		Err:       err,
	}

	s.log(ctx).ErrorContext(ctx, "wallet payment failed",
		slog.String("order_id", s.orderID),
		slog.String("error", err.Error()),
	)
	s.rail.recorder.Record(ctx, s.outcome)
	return s.outcome
}

func (s *Session) context(ctx context.Context) context.Context {
	return logger.WithAttempt(ctx, s.id, string(domain.RailWallet))
}

func (s *Session) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.rail.logger)
}

var _ Handler = (*Session)(nil)
