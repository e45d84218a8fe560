package domain

// Rail identifies a payment path.
type Rail string

const (
	RailCard   Rail = "card"
	RailWallet Rail = "wallet"
)

// OutcomeKind classifies how a payment attempt ended.
type OutcomeKind string

const (
	OutcomeSuccess            OutcomeKind = "success"
	OutcomeRecoverableDecline OutcomeKind = "recoverable_decline"
	OutcomeFatalError         OutcomeKind = "fatal_error"
	OutcomeFormInvalid        OutcomeKind = "form_invalid"
	OutcomeCancelled          OutcomeKind = "cancelled"
)

// Outcome is what a rail controller reports once an attempt settles. Message
// is the buyer-facing text; Err keeps the underlying cause for operators.
type Outcome struct {
	AttemptID   string       `json:"attempt_id"`
	Rail        Rail         `json:"rail"`
	Kind        OutcomeKind  `json:"kind"`
	OrderID     string       `json:"order_id,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Issue       string       `json:"issue,omitempty"`
	DebugID     string       `json:"debug_id,omitempty"`
	Message     string       `json:"message,omitempty"`
	Err         error        `json:"-"`
}

// Succeeded reports whether the attempt captured a payment.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Kind == OutcomeSuccess
}
