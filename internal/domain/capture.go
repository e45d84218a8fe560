package domain

// Transaction statuses and error issues the checkout reacts to. Any other
// status reported by the provider is passed through untouched.
const (
	TransactionCompleted = "COMPLETED"
	TransactionDeclined  = "DECLINED"

	IssueInstrumentDeclined = "INSTRUMENT_DECLINED"
)

// Transaction is the capture (or authorization) found in a capture response.
type Transaction struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// ErrorDetail is the first structured error detail of a backend response.
type ErrorDetail struct {
	Issue       string `json:"issue"`
	Description string `json:"description,omitempty"`
}

// CaptureResult is the decoded, uninterpreted answer to a capture request.
type CaptureResult struct {
	Transaction *Transaction
	ErrorDetail *ErrorDetail
	DebugID     string
	// Raw is the response body exactly as received.
	Raw        []byte
	StatusCode int
}
