package domain

import (
	"errors"
	"fmt"

	apperrors "github.com/utafrali/paycheckout/pkg/errors"
)

// Checkout errors. Each wraps a pkg/errors sentinel so HTTP status mapping
// keeps working when one crosses a handler boundary.
var (
	ErrRecoverableDecline = fmt.Errorf("recoverable decline: %w", apperrors.ErrPaymentFailed)
	ErrFatalDecline       = fmt.Errorf("fatal decline: %w", apperrors.ErrPaymentFailed)
	ErrMerchantValidation = fmt.Errorf("merchant validation failed: %w", apperrors.ErrUpstream)
	ErrFormInvalid        = fmt.Errorf("payment form is invalid: %w", apperrors.ErrInvalidInput)
	ErrAlreadyInFlight    = fmt.Errorf("payment already in flight: %w", apperrors.ErrConflict)
	ErrIllegalTransition  = fmt.Errorf("illegal state transition: %w", apperrors.ErrConflict)
	ErrWalletUnavailable  = errors.New("wallet payments are not supported on this device")
	ErrWalletIneligible   = errors.New("wallet payments are not eligible for this merchant")
)

// OrderCreationError is returned when the backend does not issue an order id.
// Structured failures keep the first detail and debug id; anything else keeps
// the raw payload or the transport error.
type OrderCreationError struct {
	Issue       string
	Description string
	DebugID     string
	Raw         []byte
	StatusCode  int
	Err         error
}

func (e *OrderCreationError) Error() string {
	switch {
	case e.Issue != "":
		return fmt.Sprintf("%s %s (%s)", e.Issue, e.Description, e.DebugID)
	case len(e.Raw) > 0:
		return string(e.Raw)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("order creation failed with status %d", e.StatusCode)
	}
}

func (e *OrderCreationError) Unwrap() error {
	return e.Err
}

// CaptureError is returned when a capture request could not be completed at
// the transport level, or when a wallet capture is rejected.
type CaptureError struct {
	OrderID string
	Err     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture order %s: %v", e.OrderID, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
