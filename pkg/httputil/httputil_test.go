package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/paycheckout/pkg/errors"
	"github.com/utafrali/paycheckout/pkg/httpclient"
	"github.com/utafrali/paycheckout/pkg/logger"
	"github.com/utafrali/paycheckout/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) httpclient.ErrorBody {
	t.Helper()
	var body httpclient.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"id": "ORDER-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"ORDER-1"}`, rec.Body.String())
}

func TestWriteErrorBody_DefaultsDebugIDToCorrelationID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-42"))
	rec := httptest.NewRecorder()

	WriteErrorBody(rec, req, http.StatusUnprocessableEntity, httpclient.ErrorBody{
		Name:    "UNPROCESSABLE_ENTITY",
		Details: []httpclient.ErrorDetail{{Issue: "INSTRUMENT_DECLINED"}},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "corr-42", body.DebugID)
	assert.Equal(t, "INSTRUMENT_DECLINED", body.FirstDetail().Issue)
}

func TestWriteError_AppError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/X/capture", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.NotFound("order", "X"), testLogger())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "NOT_FOUND", body.Name)
	assert.Contains(t, body.Message, "order with id X not found")
}

func TestWriteError_WrappedSentinel(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, fmt.Errorf("decode: %w", apperrors.ErrInvalidInput), testLogger())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody(t, rec).Name)
}

func TestWriteError_UnknownIsInternal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, fmt.Errorf("disk on fire"), testLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Name)
	assert.NotContains(t, body.Message, "disk on fire")
}

func TestWriteError_UsesContextLogger(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(logger.NewContext(context.Background(), testLogger()))
	rec := httptest.NewRecorder()

	WriteError(rec, req, fmt.Errorf("boom"), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type cartPayload struct {
	Cart []struct {
		SKU      string `json:"sku" validate:"required"`
		Quantity int    `json:"quantity" validate:"gt=0"`
	} `json:"cart" validate:"required,min=1,dive"`
}

func TestWriteError_ValidationDetails(t *testing.T) {
	var p cartPayload
	p.Cart = append(p.Cart, struct {
		SKU      string `json:"sku" validate:"required"`
		Quantity int    `json:"quantity" validate:"gt=0"`
	}{})
	err := validator.Validate(p)
	require.Error(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	rec := httptest.NewRecorder()
	WriteError(rec, req, err, testLogger())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INVALID_REQUEST", body.Name)
	require.Len(t, body.Details, 2)
	assert.Equal(t, "INVALID_PARAMETER_VALUE", body.Details[0].Issue)
	assert.Equal(t, "cart[0].quantity must be greater than 0", body.Details[0].Description)
	assert.Equal(t, "cart[0].sku is required", body.Details[1].Description)
}
