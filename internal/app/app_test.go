package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/paycheckout/internal/cardrail"
	"github.com/utafrali/paycheckout/internal/config"
	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/internal/metrics"
	"github.com/utafrali/paycheckout/internal/wallet"
	"github.com/utafrali/paycheckout/pkg/health"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestBackend serves the sandbox backend with the given scenario.
func newTestBackend(t *testing.T, scenario string) *httptest.Server {
	t.Helper()
	sb, err := NewSandbox(&config.Sandbox{
		Environment:    "test",
		HTTPPort:       8888,
		Scenario:       scenario,
		OTELSampleRate: 1,
	}, newTestLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(sb.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newTestCheckout(t *testing.T, backendURL string, envs map[string]string) *Checkout {
	t.Helper()
	t.Setenv("BACKEND_BASE_URL", backendURL)
	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := NewCheckout(context.Background(), cfg, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

// --- OutcomeRecorder ---

type fakePublisher struct {
	published []*domain.Outcome
	err       error
}

func (f *fakePublisher) PublishOutcome(_ context.Context, o *domain.Outcome) error {
	f.published = append(f.published, o)
	return f.err
}

func TestOutcomeRecorder_CountsAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	r := NewOutcomeRecorder(pub, newTestLogger())
	counter := metrics.PaymentOutcomes.WithLabelValues("wallet", "cancelled")
	before := testutil.ToFloat64(counter)

	r.Record(context.Background(), &domain.Outcome{Rail: domain.RailWallet, Kind: domain.OutcomeCancelled})
	r.Record(context.Background(), nil)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.Len(t, pub.published, 1)
}

func TestOutcomeRecorder_PublishFailureIsCounted(t *testing.T) {
	r := NewOutcomeRecorder(&fakePublisher{err: errors.New("broker down")}, newTestLogger())
	before := testutil.ToFloat64(metrics.OutcomePublishErrors)

	r.Record(context.Background(), &domain.Outcome{Rail: domain.RailCard, Kind: domain.OutcomeSuccess})

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OutcomePublishErrors))
}

func TestOutcomeRecorder_WithoutPublisher(t *testing.T) {
	r := NewOutcomeRecorder(nil, newTestLogger())
	assert.NotPanics(t, func() {
		r.Record(context.Background(), &domain.Outcome{Rail: domain.RailCard, Kind: domain.OutcomeFatalError})
	})
}

// --- Sandbox app ---

func TestNewSandbox_InvalidScenario(t *testing.T) {
	_, err := NewSandbox(&config.Sandbox{HTTPPort: 8888, Scenario: "lucky"}, newTestLogger())
	assert.Error(t, err)
}

func TestSandbox_ShutdownWithoutRun(t *testing.T) {
	sb, err := NewSandbox(&config.Sandbox{HTTPPort: 8888, Scenario: "completed"}, newTestLogger())
	require.NoError(t, err)
	assert.NoError(t, sb.Shutdown())
}

// --- Checkout ---

func TestCheckout_Preflight(t *testing.T) {
	srv := newTestBackend(t, "completed")
	a := newTestCheckout(t, srv.URL, nil)

	resp, err := a.Preflight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusUp, resp.Status)
	assert.Contains(t, resp.Checks, "order-backend")
}

func TestCheckout_PreflightBackendDown(t *testing.T) {
	srv := newTestBackend(t, "completed")
	url := srv.URL
	srv.Close()
	a := newTestCheckout(t, url, nil)

	resp, err := a.Preflight(context.Background())
	assert.Error(t, err)
	assert.Equal(t, health.StatusDown, resp.Status)
}

func TestCheckout_RedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newTestBackend(t, "completed")
	a := newTestCheckout(t, srv.URL, map[string]string{
		"GUARD_BACKEND": "redis",
		"REDIS_URL":     "redis://" + mr.Addr() + "/0",
		"CHECKOUT_ID":   "checkout-42",
	})

	resp, err := a.Preflight(context.Background())
	require.NoError(t, err)
	assert.Contains(t, resp.Checks, "redis")

	res := a.SmokeCard(context.Background(), SmokeOptions{})
	require.NoError(t, res.Err)
	assert.True(t, res.Outcome.Succeeded())
	assert.False(t, mr.Exists("paycheckout:inflight:checkout-42"), "guard must be released")
}

func TestCheckout_RedisUnreachable(t *testing.T) {
	srv := newTestBackend(t, "completed")
	t.Setenv("BACKEND_BASE_URL", srv.URL)
	t.Setenv("GUARD_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1/0")

	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = NewCheckout(context.Background(), cfg, newTestLogger())
	assert.ErrorContains(t, err, "connect to redis")
}

func TestSmokeCard_Scenarios(t *testing.T) {
	tests := []struct {
		scenario string
		opts     SmokeOptions
		want     domain.OutcomeKind
		alert    string
	}{
		{"completed", SmokeOptions{}, domain.OutcomeSuccess, "Transaction COMPLETED:"},
		{"declined", SmokeOptions{}, domain.OutcomeFatalError, "Sorry, your transaction could not be processed..."},
		{"instrument_declined", SmokeOptions{}, domain.OutcomeRecoverableDecline, ""},
		{"instrument_declined", SmokeOptions{CardTokenUsed: true}, domain.OutcomeFatalError, "Sorry, your transaction could not be processed..."},
		{"instrument_declined", SmokeOptions{NoRestart: true}, domain.OutcomeFatalError, "Sorry, your transaction could not be processed..."},
		{"capture_error", SmokeOptions{}, domain.OutcomeFatalError, "Sorry, your transaction could not be processed..."},
		{"create_error", SmokeOptions{}, domain.OutcomeFatalError, "Could not initiate PayPal Checkout..."},
		{"completed", SmokeOptions{FormInvalid: true}, domain.OutcomeFormInvalid, cardrail.MsgFormInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			srv := newTestBackend(t, tt.scenario)
			a := newTestCheckout(t, srv.URL, nil)

			res := a.SmokeCard(context.Background(), tt.opts)

			assert.Equal(t, SmokeCard, res.Rail)
			require.NotNil(t, res.Outcome, "err: %v", res.Err)
			assert.Equal(t, tt.want, res.Outcome.Kind)
			if tt.alert == "" {
				assert.Empty(t, res.Alerts)
			} else {
				require.NotEmpty(t, res.Alerts)
				assert.Contains(t, res.Alerts[len(res.Alerts)-1], tt.alert)
			}
		})
	}
}

func TestSmokeButtons(t *testing.T) {
	srv := newTestBackend(t, "completed")
	a := newTestCheckout(t, srv.URL, nil)

	res := a.SmokeButtons(context.Background(), SmokeOptions{})
	require.NoError(t, res.Err)
	assert.True(t, res.Outcome.Succeeded())

	res = a.SmokeButtons(context.Background(), SmokeOptions{PopupError: true})
	require.NoError(t, res.Err)
	assert.Equal(t, domain.OutcomeFatalError, res.Outcome.Kind)
}

func TestSmokeButtons_InstrumentDeclined(t *testing.T) {
	srv := newTestBackend(t, "instrument_declined")
	a := newTestCheckout(t, srv.URL, nil)

	res := a.SmokeButtons(context.Background(), SmokeOptions{})
	require.NoError(t, res.Err)
	assert.Equal(t, domain.OutcomeRecoverableDecline, res.Outcome.Kind)

	// Without a restart offer the Restarter stays an untyped nil and the
	// decline is fatal instead of panicking on a nil pointer.
	res = a.SmokeButtons(context.Background(), SmokeOptions{NoRestart: true})
	require.NoError(t, res.Err)
	assert.Equal(t, domain.OutcomeFatalError, res.Outcome.Kind)
}

func TestSmokeButtons_CreateError(t *testing.T) {
	srv := newTestBackend(t, "create_error")
	a := newTestCheckout(t, srv.URL, nil)

	res := a.SmokeButtons(context.Background(), SmokeOptions{})
	var createErr *domain.OrderCreationError
	require.ErrorAs(t, res.Err, &createErr)
	assert.Nil(t, res.Outcome)
	assert.NotEmpty(t, res.Alerts)
}

func TestSmokeWallet_Success(t *testing.T) {
	srv := newTestBackend(t, "completed")
	a := newTestCheckout(t, srv.URL, nil)
	eligible := metrics.WalletGate.WithLabelValues(metrics.GateEligible)
	before := testutil.ToFloat64(eligible)

	res := a.SmokeWallet(context.Background(), SmokeOptions{})

	require.NoError(t, res.Err)
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Succeeded())
	assert.NotEmpty(t, res.Outcome.OrderID)
	assert.Equal(t, []string{wallet.MsgPaymentSuccessful}, res.Alerts)
	assert.Equal(t, before+1, testutil.ToFloat64(eligible))
}

func TestSmokeWallet_Failures(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		opts     SmokeOptions
		wantErr  error
		want     domain.OutcomeKind
	}{
		{"ineligible", "completed", SmokeOptions{WalletIneligible: true}, domain.ErrWalletIneligible, ""},
		{"unsupported device", "completed", SmokeOptions{WalletUnsupportedOS: true}, domain.ErrWalletUnavailable, ""},
		{"merchant validation", "completed", SmokeOptions{MerchantRejects: true}, domain.ErrMerchantValidation, domain.OutcomeFatalError},
		{"create fails", "create_error", SmokeOptions{}, nil, domain.OutcomeFatalError},
		{"confirm fails", "completed", SmokeOptions{ConfirmRejects: true}, nil, domain.OutcomeFatalError},
		{"capture declined", "declined", SmokeOptions{}, nil, domain.OutcomeFatalError},
		{"cancelled", "completed", SmokeOptions{CancelWallet: true}, nil, domain.OutcomeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestBackend(t, tt.scenario)
			a := newTestCheckout(t, srv.URL, nil)

			res := a.SmokeWallet(context.Background(), tt.opts)

			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			} else {
				assert.NoError(t, res.Err)
			}
			if tt.want == "" {
				assert.Nil(t, res.Outcome)
				return
			}
			require.NotNil(t, res.Outcome)
			assert.Equal(t, tt.want, res.Outcome.Kind)
			assert.NotContains(t, res.Alerts, wallet.MsgPaymentSuccessful)
		})
	}
}

func TestSandboxHandler_Health(t *testing.T) {
	srv := newTestBackend(t, "completed")

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
