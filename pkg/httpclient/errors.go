package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/paycheckout/pkg/errors"
)

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 1 << 20

// ErrorBody is the error payload returned by the order backend. It follows the
// PayPal Orders API shape: a name, a message, a list of details and a debug id.
type ErrorBody struct {
	Name    string        `json:"name,omitempty"`
	Message string        `json:"message,omitempty"`
	Details []ErrorDetail `json:"details,omitempty"`
	DebugID string        `json:"debug_id,omitempty"`
}

// ErrorDetail is a single entry of ErrorBody.Details.
type ErrorDetail struct {
	Issue       string `json:"issue"`
	Description string `json:"description,omitempty"`
}

// FirstDetail returns the first detail entry, or nil when there is none.
func (b *ErrorBody) FirstDetail() *ErrorDetail {
	if b == nil || len(b.Details) == 0 {
		return nil
	}
	d := b.Details[0]
	return &d
}

// DecodeErrorBody parses raw as an ErrorBody. It reports false when raw is not
// a JSON object or carries none of the error fields.
func DecodeErrorBody(raw []byte) (*ErrorBody, bool) {
	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	if body.Name == "" && body.Message == "" && len(body.Details) == 0 && body.DebugID == "" {
		return nil, false
	}
	return &body, true
}

// ReadBody drains and closes resp.Body, reading at most 1 MB.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. When the body is a structured ErrorBody the first detail
// and debug id are kept in the message. The response body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	raw, err := ReadBody(resp)
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	message := strings.TrimSpace(string(raw))
	if body, ok := DecodeErrorBody(raw); ok {
		message = body.Summary()
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return mapStatus(resp.StatusCode, fmt.Sprintf("%s: %s", serviceName, message))
}

// Summary renders the body as "<issue> <description> (<debug_id>)", falling
// back to the top-level message when no detail is present.
func (b *ErrorBody) Summary() string {
	var parts []string
	if d := b.FirstDetail(); d != nil {
		parts = append(parts, d.Issue)
		if d.Description != "" {
			parts = append(parts, d.Description)
		}
	} else if b.Message != "" {
		parts = append(parts, b.Message)
	} else if b.Name != "" {
		parts = append(parts, b.Name)
	}
	if b.DebugID != "" {
		parts = append(parts, "("+b.DebugID+")")
	}
	return strings.Join(parts, " ")
}

func mapStatus(status int, message string) error {
	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{Code: "NOT_FOUND", Message: message, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(message)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(message)
	case status >= 500:
		return &apperrors.AppError{Code: "UPSTREAM_ERROR", Message: message, Status: status, Err: apperrors.ErrUpstream}
	default:
		return &apperrors.AppError{Code: "HTTP_" + fmt.Sprint(status), Message: message, Status: status}
	}
}

// IsSuccess returns true for 2xx status codes.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
