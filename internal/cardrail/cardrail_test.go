package cardrail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/internal/guard"
)

// --- Mock Gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, cart domain.Cart) (string, error) {
	args := m.Called(ctx, cart)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CaptureOrder(ctx context.Context, orderID string) (*domain.CaptureResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CaptureResult), args.Error(1)
}

// --- Mock HostedFields ---

type mockFields struct {
	mock.Mock
}

func (m *mockFields) State(ctx context.Context) (FormState, error) {
	args := m.Called(ctx)
	return args.Get(0).(FormState), args.Error(1)
}

func (m *mockFields) Authorize(ctx context.Context, orderID string, billing domain.BillingAddress) (Approval, error) {
	args := m.Called(ctx, orderID, billing)
	return args.Get(0).(Approval), args.Error(1)
}

// --- Fakes ---

type fakeAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeAlerter) Alert(_ context.Context, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []*domain.Outcome
}

func (f *fakeRecorder) Record(_ context.Context, o *domain.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
}

type fakeRestarter struct {
	calls int
	err   error
}

func (f *fakeRestarter) Restart(context.Context) error {
	f.calls++
	return f.err
}

// --- Helpers ---

type harness struct {
	ctrl     *Controller
	gateway  *mockGateway
	fields   *mockFields
	guard    *guard.Local
	alerter  *fakeAlerter
	recorder *fakeRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cart, err := domain.NewCart(domain.CartItem{SKU: "1blwyeo8", Quantity: 2})
	require.NoError(t, err)

	h := &harness{
		gateway:  new(mockGateway),
		fields:   new(mockFields),
		guard:    guard.NewLocal(),
		alerter:  &fakeAlerter{},
		recorder: &fakeRecorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	h.ctrl = New(cart, h.gateway, h.fields, h.guard, h.alerter, h.recorder, logger)
	return h
}

func completed(status, id string) *domain.CaptureResult {
	return &domain.CaptureResult{Transaction: &domain.Transaction{Status: status, ID: id}}
}

// --- Tests ---

func TestSetBillingField(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, StateIdle, h.ctrl.State())

	require.NoError(t, h.ctrl.SetBillingField(domain.FieldPostalCode, "SW1A 1AA"))
	assert.Equal(t, StateFormFilled, h.ctrl.State())
	assert.Equal(t, "SW1A 1AA", h.ctrl.Billing().PostalCode)

	err := h.ctrl.SetBillingField("favouriteColour", "blue")
	require.Error(t, err)
	assert.Equal(t, StateFormFilled, h.ctrl.State())
}

func TestSubmit_ScenarioA_Success(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetBillingField(domain.FieldCountryCode, "GB"))

	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.MatchedBy(func(c domain.Cart) bool {
		return len(c.Items) == 1 && c.Items[0].SKU == "1blwyeo8" && c.Items[0].Quantity == 2
	})).Return("ORDER1", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER1", mock.MatchedBy(func(b domain.BillingAddress) bool {
		return b.CountryCode == "GB"
	})).Run(func(mock.Arguments) {
		assert.True(t, h.guard.IsPaying())
		assert.False(t, h.ctrl.SubmitEnabled())
		assert.Equal(t, StateSubmitting, h.ctrl.State())
	}).Return(Approval{OrderID: "ORDER1", Restarter: &fakeRestarter{}}, nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").Return(completed("COMPLETED", "CAP1"), nil)

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, o)

	assert.Equal(t, domain.OutcomeSuccess, o.Kind)
	assert.Equal(t, "Transaction COMPLETED: CAP1.", o.Message)
	assert.Equal(t, "ORDER1", o.OrderID)
	assert.NotEmpty(t, o.AttemptID)
	assert.Equal(t, []string{"Transaction COMPLETED: CAP1. See console for details."}, h.alerter.messages)
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.False(t, h.guard.IsPaying())
	assert.True(t, h.ctrl.SubmitEnabled())
	require.Len(t, h.recorder.outcomes, 1)
	h.gateway.AssertExpectations(t)
	h.fields.AssertExpectations(t)
}

func TestSubmit_ScenarioB_RecoverableDeclineRestarts(t *testing.T) {
	h := newHarness(t)
	restarter := &fakeRestarter{}

	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER1", mock.Anything).
		Return(Approval{OrderID: "ORDER1", Restarter: restarter}, nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").Return(&domain.CaptureResult{
		ErrorDetail: &domain.ErrorDetail{Issue: domain.IssueInstrumentDeclined, Description: "card refused"},
		DebugID:     "D1",
	}, nil)

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeRecoverableDecline, o.Kind)
	assert.True(t, errors.Is(o.Err, domain.ErrRecoverableDecline))
	assert.Equal(t, 1, restarter.calls)
	assert.Empty(t, h.alerter.messages)
	assert.False(t, h.guard.IsPaying())
	assert.Equal(t, StateFormFilled, h.ctrl.State())
}

func TestSubmit_ScenarioC_DeclinedTransactionIsFatal(t *testing.T) {
	h := newHarness(t)

	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER2", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER2", mock.Anything).
		Return(Approval{OrderID: "ORDER2", Restarter: &fakeRestarter{}}, nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER2").Return(completed("DECLINED", "CAP2"), nil)

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFatalError, o.Kind)
	assert.Equal(t, "Sorry, your transaction could not be processed...Transaction DECLINED: CAP2", o.Message)
	assert.True(t, errors.Is(o.Err, domain.ErrFatalDecline))
	assert.Equal(t, []string{o.Message}, h.alerter.messages)
	assert.False(t, h.guard.IsPaying())
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestSubmit_CardTokenDeclineIsFatal(t *testing.T) {
	h := newHarness(t)
	restarter := &fakeRestarter{}

	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER1", mock.Anything).
		Return(Approval{OrderID: "ORDER1", CardTokenUsed: true, Restarter: restarter}, nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").Return(&domain.CaptureResult{
		ErrorDetail: &domain.ErrorDetail{Issue: domain.IssueInstrumentDeclined, Description: "card refused"},
		DebugID:     "D1",
	}, nil)

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFatalError, o.Kind)
	assert.Equal(t, "Sorry, your transaction could not be processed...card refused (D1)", o.Message)
	assert.Equal(t, domain.IssueInstrumentDeclined, o.Issue)
	assert.Zero(t, restarter.calls)
}

func TestSubmit_FormInvalidMakesNoNetworkCall(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetBillingField(domain.FieldAddressLine1, "1 Main St"))
	h.fields.On("State", mock.Anything).Return(FormState{Valid: false, Invalid: []string{"number"}}, nil)

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFormInvalid, o.Kind)
	assert.True(t, errors.Is(o.Err, domain.ErrFormInvalid))
	assert.Equal(t, []string{"The payment form is invalid"}, h.alerter.messages)
	assert.Equal(t, StateFormFilled, h.ctrl.State())
	assert.False(t, h.guard.IsPaying())
	h.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestSubmit_AlreadyInFlight(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.guard.Acquire(context.Background()))

	o, err := h.ctrl.Submit(context.Background())
	assert.Nil(t, o)
	assert.True(t, errors.Is(err, domain.ErrAlreadyInFlight))
	h.fields.AssertNotCalled(t, "State", mock.Anything)
	h.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestSubmit_CreateOrderFailureReleasesGuard(t *testing.T) {
	h := newHarness(t)
	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("", &domain.OrderCreationError{
		Issue: "INVALID_PARAMETER_VALUE", Description: "bad sku", DebugID: "D7",
	})

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFatalError, o.Kind)
	assert.Equal(t, "Could not initiate PayPal Checkout...INVALID_PARAMETER_VALUE bad sku (D7)", o.Message)
	assert.Equal(t, "D7", o.DebugID)
	assert.False(t, h.guard.IsPaying())
	assert.Equal(t, StateIdle, h.ctrl.State())
	h.fields.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_CaptureTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER1", mock.Anything).Return(Approval{OrderID: "ORDER1"}, nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").
		Return(nil, &domain.CaptureError{OrderID: "ORDER1", Err: errors.New("connection reset")})

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFatalError, o.Kind)
	assert.Contains(t, o.Message, "connection reset")
	assert.False(t, h.guard.IsPaying())
}

func TestSubmit_AuthorizeFailure(t *testing.T) {
	h := newHarness(t)
	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER1", mock.Anything).Return(Approval{}, errors.New("3ds challenge failed"))

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFatalError, o.Kind)
	assert.Equal(t, "ORDER1", o.OrderID)
	assert.False(t, h.guard.IsPaying())
	h.gateway.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything)
}

func TestSubmit_RestartFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER1", mock.Anything).
		Return(Approval{OrderID: "ORDER1", Restarter: &fakeRestarter{err: errors.New("sdk gone")}}, nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").Return(&domain.CaptureResult{
		ErrorDetail: &domain.ErrorDetail{Issue: domain.IssueInstrumentDeclined},
	}, nil)

	o, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFatalError, o.Kind)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestSubmit_BillingSnapshotIsTaken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetBillingField(domain.FieldPostalCode, "AAA"))

	h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
	h.fields.On("Authorize", mock.Anything, "ORDER1", mock.Anything).Run(func(args mock.Arguments) {
		require.NoError(t, h.ctrl.SetBillingField(domain.FieldPostalCode, "BBB"))
		assert.Equal(t, "AAA", args.Get(2).(domain.BillingAddress).PostalCode)
	}).Return(Approval{OrderID: "ORDER1"}, nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").Return(completed("COMPLETED", "CAP1"), nil)

	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BBB", h.ctrl.Billing().PostalCode)
}

func TestButtons_CreateOrderThenApprove(t *testing.T) {
	h := newHarness(t)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
	h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").Return(completed("COMPLETED", "CAP1"), nil)

	orderID, err := h.ctrl.CreateOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ORDER1", orderID)

	o := h.ctrl.OnApprove(context.Background(), Approval{OrderID: orderID, Restarter: &fakeRestarter{}})
	assert.True(t, o.Succeeded())
	assert.Equal(t, "Transaction COMPLETED: CAP1.", o.Message)
	require.Len(t, h.recorder.outcomes, 1)
	assert.Equal(t, h.recorder.outcomes[0].AttemptID, o.AttemptID)
}

func TestButtons_CreateOrderFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("", &domain.OrderCreationError{Raw: []byte(`{"error":"boom"}`)})

	orderID, err := h.ctrl.CreateOrder(context.Background())
	require.Error(t, err)
	assert.Empty(t, orderID)
	assert.Equal(t, []string{`Could not initiate PayPal Checkout...{"error":"boom"}`}, h.alerter.messages)
	require.Len(t, h.recorder.outcomes, 1)
	assert.Equal(t, domain.OutcomeFatalError, h.recorder.outcomes[0].Kind)
}

func TestOnProviderError(t *testing.T) {
	h := newHarness(t)

	assert.Nil(t, h.ctrl.OnProviderError(context.Background(), nil))

	o := h.ctrl.OnProviderError(context.Background(), errors.New("script failed to load"))
	require.NotNil(t, o)
	assert.Equal(t, domain.OutcomeFatalError, o.Kind)
	assert.Empty(t, h.alerter.messages)
	require.Len(t, h.recorder.outcomes, 1)
}

func TestGuardReleasedForEveryOutcomeClass(t *testing.T) {
	captures := map[string]*domain.CaptureResult{
		"success":  completed("COMPLETED", "CAP1"),
		"decline":  {ErrorDetail: &domain.ErrorDetail{Issue: domain.IssueInstrumentDeclined}},
		"fatal":    completed("DECLINED", "CAP2"),
		"no-body":  {Raw: []byte("oops")},
		"detailed": {ErrorDetail: &domain.ErrorDetail{Issue: "OTHER"}, DebugID: "D"},
	}

	for name, res := range captures {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.fields.On("State", mock.Anything).Return(FormState{Valid: true}, nil)
			h.gateway.On("CreateOrder", mock.Anything, mock.Anything).Return("ORDER1", nil)
			h.fields.On("Authorize", mock.Anything, "ORDER1", mock.Anything).
				Return(Approval{OrderID: "ORDER1", Restarter: &fakeRestarter{}}, nil)
			h.gateway.On("CaptureOrder", mock.Anything, "ORDER1").Return(res, nil)

			_, err := h.ctrl.Submit(context.Background())
			require.NoError(t, err)
			assert.False(t, h.guard.IsPaying())
			assert.True(t, h.ctrl.SubmitEnabled())
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "form_filled", StateFormFilled.String())
	assert.Equal(t, "submitting", StateSubmitting.String())
	assert.Equal(t, "State(7)", State(7).String())
}
