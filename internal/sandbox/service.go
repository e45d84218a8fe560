package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/paycheckout/internal/domain"
	apperrors "github.com/utafrali/paycheckout/pkg/errors"
	"github.com/utafrali/paycheckout/pkg/httpclient"
)

var (
	ordersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_orders_created_total",
		Help: "Orders created by the sandbox backend.",
	}, []string{"rail"})

	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_captures_total",
		Help: "Capture requests answered by the sandbox backend, by result.",
	}, []string{"rail", "result"})
)

// APIError is a provider-shaped error response.
type APIError struct {
	Status int
	Body   httpclient.ErrorBody
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body.Summary())
}

// CaptureResponse is the body of a successful capture.
type CaptureResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

// PurchaseUnit holds the payments made against one unit of an order.
type PurchaseUnit struct {
	ReferenceID string   `json:"reference_id"`
	Payments    Payments `json:"payments"`
}

// Payments lists the captures of a purchase unit.
type Payments struct {
	Captures []Capture `json:"captures"`
}

// Capture is a single captured (or declined) payment.
type Capture struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CreateTime string `json:"create_time"`
}

// Service implements the sandbox order backend.
type Service struct {
	store  *store
	logger *slog.Logger

	mu       sync.RWMutex
	scenario Scenario
}

// NewService creates a backend answering with scenario until it is changed.
func NewService(scenario Scenario, logger *slog.Logger) *Service {
	return &Service{
		store:    newStore(),
		logger:   logger,
		scenario: scenario,
	}
}

// Scenario returns the scenario applied to new orders.
func (s *Service) Scenario() Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenario
}

// SetScenario changes the scenario applied to new orders.
func (s *Service) SetScenario(ctx context.Context, scenario Scenario) {
	s.mu.Lock()
	previous := s.scenario
	s.scenario = scenario
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "sandbox scenario changed",
		slog.String("from", string(previous)),
		slog.String("to", string(scenario)),
	)
}

// CreateOrder issues an order for cart. override, when set, replaces the
// current scenario for this order only.
func (s *Service) CreateOrder(ctx context.Context, cart domain.Cart, wallet bool, override Scenario) (Order, error) {
	if err := cart.Validate(); err != nil {
		return Order{}, err
	}

	scenario := override
	if scenario == "" {
		scenario = s.Scenario()
	}
	rail := railLabel(wallet)

	if scenario == ScenarioCreateError {
		s.logger.WarnContext(ctx, "sandbox rejected order creation", slog.String("rail", rail))
		return Order{}, &APIError{
			Status: http.StatusUnprocessableEntity,
			Body: httpclient.ErrorBody{
				Name:    "UNPROCESSABLE_ENTITY",
				Message: "The requested action could not be performed, semantically incorrect, or failed business validation.",
				Details: []httpclient.ErrorDetail{{
					Issue:       "PAYEE_ACCOUNT_RESTRICTED",
					Description: "The merchant account is restricted.",
				}},
			},
		}
	}

	o := s.store.create(cart, wallet, scenario)
	ordersCreated.WithLabelValues(rail).Inc()
	s.logger.InfoContext(ctx, "sandbox order created",
		slog.String("order_id", o.ID),
		slog.String("rail", rail),
		slog.String("scenario", string(o.Scenario)),
		slog.Int("items", len(o.Cart.Items)),
	)
	return o, nil
}

// CaptureOrder captures order id according to the order's scenario. A
// wallet capture only finds wallet orders and a card capture only card orders.
func (s *Service) CaptureOrder(ctx context.Context, id string, wallet bool) (*CaptureResponse, error) {
	rail := railLabel(wallet)

	o, err := s.store.get(id)
	if err != nil || o.Wallet != wallet {
		capturesTotal.WithLabelValues(rail, "not_found").Inc()
		return nil, notFound(id)
	}

	switch o.Scenario {
	case ScenarioInstrumentDeclined:
		capturesTotal.WithLabelValues(rail, string(o.Scenario)).Inc()
		return nil, &APIError{
			Status: http.StatusUnprocessableEntity,
			Body: httpclient.ErrorBody{
				Name:    "UNPROCESSABLE_ENTITY",
				Message: "The requested action could not be performed, semantically incorrect, or failed business validation.",
				Details: []httpclient.ErrorDetail{{
					Issue:       domain.IssueInstrumentDeclined,
					Description: "The instrument presented was either declined by the processor or bank, or it can't be used for this payment.",
				}},
				DebugID: debugID(),
			},
		}
	case ScenarioCaptureError:
		capturesTotal.WithLabelValues(rail, string(o.Scenario)).Inc()
		return nil, &APIError{
			Status: http.StatusInternalServerError,
			Body: httpclient.ErrorBody{
				Name:    "INTERNAL_SERVER_ERROR",
				Message: "An internal server error has occurred.",
				DebugID: debugID(),
			},
		}
	}

	// Wallet captures only report success by status code.
	if o.Wallet && o.Scenario == ScenarioDeclined {
		capturesTotal.WithLabelValues(rail, string(o.Scenario)).Inc()
		return nil, &APIError{
			Status: http.StatusUnprocessableEntity,
			Body: httpclient.ErrorBody{
				Name:    "UNPROCESSABLE_ENTITY",
				Message: "The requested action could not be performed, semantically incorrect, or failed business validation.",
				Details: []httpclient.ErrorDetail{{
					Issue:       "TRANSACTION_REFUSED",
					Description: "The request was refused.",
				}},
				DebugID: debugID(),
			},
		}
	}

	status := domain.TransactionCompleted
	if o.Scenario == ScenarioDeclined {
		status = domain.TransactionDeclined
	}

	captured, err := s.store.complete(id, newOrderID())
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			capturesTotal.WithLabelValues(rail, "already_captured").Inc()
			return nil, alreadyCaptured()
		}
		return nil, notFound(id)
	}

	capturesTotal.WithLabelValues(rail, string(o.Scenario)).Inc()
	s.logger.InfoContext(ctx, "sandbox order captured",
		slog.String("order_id", captured.ID),
		slog.String("rail", rail),
		slog.String("capture_id", captured.CaptureID),
		slog.String("status", status),
	)

	return &CaptureResponse{
		ID:     captured.ID,
		Status: captured.Status,
		PurchaseUnits: []PurchaseUnit{{
			ReferenceID: "default",
			Payments: Payments{Captures: []Capture{{
				ID:         captured.CaptureID,
				Status:     status,
				CreateTime: s.store.now().UTC().Format("2006-01-02T15:04:05Z"),
			}}},
		}},
	}, nil
}

// Orders returns how many orders were issued.
func (s *Service) Orders() int {
	return s.store.len()
}

func notFound(id string) *APIError {
	return &APIError{
		Status: http.StatusNotFound,
		Body: httpclient.ErrorBody{
			Name:    "RESOURCE_NOT_FOUND",
			Message: "The specified resource does not exist.",
			Details: []httpclient.ErrorDetail{{
				Issue:       "INVALID_RESOURCE_ID",
				Description: fmt.Sprintf("Specified resource ID %s does not exist.", id),
			}},
		},
	}
}

func alreadyCaptured() *APIError {
	return &APIError{
		Status: http.StatusUnprocessableEntity,
		Body: httpclient.ErrorBody{
			Name:    "UNPROCESSABLE_ENTITY",
			Message: "The requested action could not be performed, semantically incorrect, or failed business validation.",
			Details: []httpclient.ErrorDetail{{
				Issue:       "ORDER_ALREADY_CAPTURED",
				Description: "Order already captured. If 'intent=CAPTURE' only one capture per order is allowed.",
			}},
			DebugID: debugID(),
		},
	}
}

func debugID() string {
	return uuid.NewString()[:13]
}

func railLabel(wallet bool) string {
	if wallet {
		return string(domain.RailWallet)
	}
	return string(domain.RailCard)
}
