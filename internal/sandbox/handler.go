package sandbox

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/pkg/httpclient"
	"github.com/utafrali/paycheckout/pkg/httputil"
	"github.com/utafrali/paycheckout/pkg/validator"
)

// ScenarioHeader overrides the scenario for a single order creation.
const ScenarioHeader = "X-Sandbox-Scenario"

// OrderHandler handles HTTP requests for the order and wallet endpoints.
type OrderHandler struct {
	service *Service
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *Service, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateOrderRequest is the JSON request body for creating an order.
type CreateOrderRequest struct {
	Cart []CartItemRequest `json:"cart" validate:"required,min=1,dive"`
}

// CartItemRequest is a single cart line.
type CartItemRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// SetScenarioRequest is the JSON request body for switching scenarios.
type SetScenarioRequest struct {
	Scenario string `json:"scenario" validate:"required"`
}

// --- Response DTOs ---

// OrderResponse is returned when an order is created.
type OrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ScenarioResponse describes the active scenario.
type ScenarioResponse struct {
	Scenario  Scenario   `json:"scenario"`
	Scenarios []Scenario `json:"scenarios"`
}

// --- Handlers ---

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r, false)
}

// CaptureOrder handles POST /api/orders/{id}/capture
func (h *OrderHandler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	h.captureOrder(w, r, false)
}

// CreateWalletOrder handles POST /applepay/api/orders
func (h *OrderHandler) CreateWalletOrder(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r, true)
}

// CaptureWalletOrder handles POST /applepay/api/orders/{id}/capture
func (h *OrderHandler) CaptureWalletOrder(w http.ResponseWriter, r *http.Request) {
	h.captureOrder(w, r, true)
}

// GetScenario handles GET /sandbox/scenario
func (h *OrderHandler) GetScenario(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, ScenarioResponse{
		Scenario:  h.service.Scenario(),
		Scenarios: Scenarios(),
	})
}

// SetScenario handles PUT /sandbox/scenario
func (h *OrderHandler) SetScenario(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req SetScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMalformed(w, r, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	scenario, err := ParseScenario(req.Scenario)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.service.SetScenario(r.Context(), scenario)
	h.GetScenario(w, r)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request, wallet bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMalformed(w, r, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var override Scenario
	if name := r.Header.Get(ScenarioHeader); name != "" {
		s, err := ParseScenario(name)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		override = s
	}

	items := make([]domain.CartItem, len(req.Cart))
	for i, item := range req.Cart {
		items[i] = domain.CartItem{SKU: item.SKU, Quantity: item.Quantity}
	}

	order, err := h.service.CreateOrder(r.Context(), domain.Cart{Items: items}, wallet, override)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, OrderResponse{ID: order.ID, Status: order.Status})
}

func (h *OrderHandler) captureOrder(w http.ResponseWriter, r *http.Request, wallet bool) {
	id := chi.URLParam(r, "id")

	resp, err := h.service.CaptureOrder(r.Context(), id, wallet)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		httputil.WriteErrorBody(w, r, apiErr.Status, apiErr.Body)
		return
	}
	httputil.WriteError(w, r, err, h.logger)
}

func writeMalformed(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteErrorBody(w, r, http.StatusBadRequest, httpclient.ErrorBody{
		Name:    "INVALID_REQUEST",
		Message: "invalid request body: " + err.Error(),
		Details: []httpclient.ErrorDetail{{Issue: "MALFORMED_REQUEST_JSON"}},
	})
}
