package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/paycheckout/internal/domain"
	apperrors "github.com/utafrali/paycheckout/pkg/errors"
	"github.com/utafrali/paycheckout/pkg/httpclient"
	"github.com/utafrali/paycheckout/pkg/logger"
	"github.com/utafrali/paycheckout/pkg/tracing"
)

const (
	serviceName = "order-backend"

	headerCorrelationID = "X-Correlation-ID"
	headerAttemptID     = "X-Attempt-ID"
)

// CircuitOpenFallback replaces the breaker's ErrCircuitOpen with a structured
// service-unavailable error.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("order backend is temporarily unavailable, please retry after 30 seconds")
}

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Timeouts bounds each backend call. A zero value inherits the caller's deadline.
type Timeouts struct {
	CreateOrder  time.Duration
	CaptureOrder time.Duration
}

// Gateway talks to the order backend. It maps requests and responses and
// never retries or interprets a capture.
type Gateway struct {
	baseURL  string
	doer     HTTPDoer
	timeouts Timeouts
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a gateway for the backend rooted at baseURL.
func New(baseURL string, doer HTTPDoer, timeouts Timeouts, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		doer:     doer,
		timeouts: timeouts,
		logger:   logger,
		tracer:   tracing.Tracer("github.com/utafrali/paycheckout/internal/gateway"),
	}
}

type createOrderResponse struct {
	ID string `json:"id"`
}

// captureResponse is the subset of an Orders API capture body the checkout reads.
type captureResponse struct {
	PurchaseUnits []struct {
		Payments struct {
			Captures       []domain.Transaction `json:"captures"`
			Authorizations []domain.Transaction `json:"authorizations"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Details []domain.ErrorDetail `json:"details"`
	DebugID string               `json:"debug_id"`
}

// CreateOrder sends the cart to POST /api/orders and returns the order id.
// Every failure is an *domain.OrderCreationError.
func (g *Gateway) CreateOrder(ctx context.Context, cart domain.Cart) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeouts.CreateOrder)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "gateway.create_order", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if err := cart.Validate(); err != nil {
		tracing.RecordError(span, err)
		return "", &domain.OrderCreationError{Err: err}
	}

	status, raw, err := g.post(ctx, "/api/orders", cart.Clone())
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if err != nil {
		tracing.RecordError(span, err)
		return "", &domain.OrderCreationError{StatusCode: status, Err: err}
	}

	var created createOrderResponse
	if httpclient.IsSuccess(status) && json.Unmarshal(raw, &created) == nil && created.ID != "" {
		span.SetAttributes(attribute.String("order.id", created.ID))
		g.logger.DebugContext(ctx, "order created",
			slog.String("order_id", created.ID),
			slog.Int("items", len(cart.Items)),
		)
		return created.ID, nil
	}

	createErr := &domain.OrderCreationError{StatusCode: status, Raw: compact(raw)}
	if body, ok := httpclient.DecodeErrorBody(raw); ok {
		createErr.DebugID = body.DebugID
		if d := body.FirstDetail(); d != nil {
			createErr.Issue = d.Issue
			createErr.Description = d.Description
		}
	}
	tracing.RecordError(span, createErr)
	return "", createErr
}

// CaptureOrder requests capture of orderID via POST /api/orders/{id}/capture.
// Any response body is decoded into the result regardless of status; only
// transport failures return an error.
func (g *Gateway) CaptureOrder(ctx context.Context, orderID string) (*domain.CaptureResult, error) {
	if orderID == "" {
		return nil, &domain.CaptureError{Err: apperrors.InvalidInput("order id is required")}
	}

	ctx, cancel := withTimeout(ctx, g.timeouts.CaptureOrder)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "gateway.capture_order",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	status, raw, err := g.post(ctx, "/api/orders/"+url.PathEscape(orderID)+"/capture", nil)
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, &domain.CaptureError{OrderID: orderID, Err: err}
	}

	result := decodeCapture(status, raw)
	if result.Transaction != nil {
		span.SetAttributes(
			attribute.String("transaction.id", result.Transaction.ID),
			attribute.String("transaction.status", result.Transaction.Status),
		)
	}
	if result.ErrorDetail != nil {
		span.SetAttributes(attribute.String("error.issue", result.ErrorDetail.Issue))
	}

	g.logger.DebugContext(ctx, "capture response received",
		slog.String("order_id", orderID),
		slog.Int("status", status),
	)
	return result, nil
}

// CreateWalletOrder creates an order for the wallet rail. Any non-2xx
// answer is a hard failure.
func (g *Gateway) CreateWalletOrder(ctx context.Context, cart domain.Cart) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeouts.CreateOrder)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "gateway.create_wallet_order", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	status, raw, err := g.post(ctx, "/applepay/api/orders", cart.Clone())
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if err != nil {
		tracing.RecordError(span, err)
		return "", &domain.OrderCreationError{StatusCode: status, Err: err}
	}
	if !httpclient.IsSuccess(status) {
		err := &domain.OrderCreationError{StatusCode: status, Err: statusError(status, raw)}
		tracing.RecordError(span, err)
		return "", err
	}

	var created createOrderResponse
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		err := &domain.OrderCreationError{StatusCode: status, Raw: compact(raw), Err: apperrors.Upstream("order backend returned no order id")}
		tracing.RecordError(span, err)
		return "", err
	}

	span.SetAttributes(attribute.String("order.id", created.ID))
	return created.ID, nil
}

// CaptureWalletOrder captures a wallet order. Any non-2xx answer is a hard failure.
func (g *Gateway) CaptureWalletOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return &domain.CaptureError{Err: apperrors.InvalidInput("order id is required")}
	}

	ctx, cancel := withTimeout(ctx, g.timeouts.CaptureOrder)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "gateway.capture_wallet_order",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	status, raw, err := g.post(ctx, "/applepay/api/orders/"+url.PathEscape(orderID)+"/capture", nil)
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if err == nil && !httpclient.IsSuccess(status) {
		err = statusError(status, raw)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return &domain.CaptureError{OrderID: orderID, Err: err}
	}
	return nil
}

// post sends a JSON POST and returns the status and body. A nil payload sends
// an empty body.
func (g *Gateway) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	var (
		req *http.Request
		err error
	)
	if payload != nil {
		req, err = httpclient.NewJSONPost(ctx, g.baseURL+path, payload)
	} else {
		req, err = httpclient.NewPost(ctx, g.baseURL+path, "application/json", nil)
	}
	if err != nil {
		return 0, nil, err
	}

	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(headerCorrelationID, id)
	}
	if id := logger.AttemptIDFromContext(ctx); id != "" {
		req.Header.Set(headerAttemptID, id)
	}
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := g.doer.Do(ctx, req)
	if err != nil {
		return 0, nil, fmt.Errorf("call %s: %w", serviceName, err)
	}

	raw, err := httpclient.ReadBody(resp)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", serviceName, err)
	}
	return resp.StatusCode, raw, nil
}

func decodeCapture(status int, raw []byte) *domain.CaptureResult {
	result := &domain.CaptureResult{Raw: raw, StatusCode: status}

	var body captureResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return result
	}

	result.DebugID = body.DebugID
	if len(body.Details) > 0 {
		d := body.Details[0]
		result.ErrorDetail = &d
	}
	if len(body.PurchaseUnits) > 0 {
		payments := body.PurchaseUnits[0].Payments
		switch {
		case len(payments.Captures) > 0:
			t := payments.Captures[0]
			result.Transaction = &t
		case len(payments.Authorizations) > 0:
			t := payments.Authorizations[0]
			result.Transaction = &t
		}
	}
	return result
}

// statusError turns a non-2xx answer into an AppError.
func statusError(status int, raw []byte) error {
	return httpclient.ParseResponseError(&http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}, serviceName)
}

// compact strips insignificant whitespace from JSON bodies and leaves
// anything else untouched.
func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return bytes.TrimSpace(raw)
	}
	return buf.Bytes()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
