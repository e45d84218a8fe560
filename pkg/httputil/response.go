package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	apperrors "github.com/utafrali/paycheckout/pkg/errors"
	"github.com/utafrali/paycheckout/pkg/httpclient"
	"github.com/utafrali/paycheckout/pkg/logger"
	"github.com/utafrali/paycheckout/pkg/validator"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorBody writes an order-backend error payload. The debug id defaults
// to the request correlation id.
func WriteErrorBody(w http.ResponseWriter, r *http.Request, status int, body httpclient.ErrorBody) {
	if body.DebugID == "" {
		body.DebugID = logger.CorrelationIDFromContext(r.Context())
	}
	WriteJSON(w, status, body)
}

// WriteError maps err to a status and error payload. Internal errors are
// logged with the request-scoped logger, falling back to fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteValidationError(w, r, valErr)
		return
	}

	status := apperrors.HTTPStatus(err)
	body := httpclient.ErrorBody{Name: "INTERNAL_SERVER_ERROR", Message: "an internal error occurred"}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body = httpclient.ErrorBody{Name: appErr.Code, Message: appErr.Message}
	} else if errors.Is(err, apperrors.ErrInvalidInput) {
		body = httpclient.ErrorBody{Name: "INVALID_REQUEST", Message: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteErrorBody(w, r, status, body)
}

// WriteValidationError writes a 400 with one detail entry per invalid field.
func WriteValidationError(w http.ResponseWriter, r *http.Request, valErr *validator.ValidationError) {
	fields := valErr.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	details := make([]httpclient.ErrorDetail, 0, len(names))
	for _, name := range names {
		details = append(details, httpclient.ErrorDetail{
			Issue:       "INVALID_PARAMETER_VALUE",
			Description: name + " " + fields[name],
		})
	}

	WriteErrorBody(w, r, http.StatusBadRequest, httpclient.ErrorBody{
		Name:    "INVALID_REQUEST",
		Message: "Request is not well-formed, syntactically incorrect, or violates schema.",
		Details: details,
	})
}
