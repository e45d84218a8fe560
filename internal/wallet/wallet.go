// Package wallet runs Apple Pay payments: an eligibility gate evaluated once
// per page, and a state machine per payment sheet that mediates between the
// native session, the provider bridge and the order backend.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/utafrali/paycheckout/internal/domain"
)

// SessionVersion is the native session API version the rail requires.
const SessionVersion = 4

// Platform reports what the device's native wallet supports.
type Platform interface {
	SupportsVersion(version int) bool
	CanMakePayments() bool
}

// Config is the provider's wallet configuration. Empty fields fall back to
// RequestDefaults.
type Config struct {
	IsEligible           bool     `json:"isEligible"`
	CountryCode          string   `json:"countryCode,omitempty"`
	CurrencyCode         string   `json:"currencyCode,omitempty"`
	MerchantCapabilities []string `json:"merchantCapabilities,omitempty"`
	SupportedNetworks    []string `json:"supportedNetworks,omitempty"`
}

// MerchantSession is the opaque token proving merchant validation.
type MerchantSession json.RawMessage

// Contact is a billing or shipping contact captured by the payment sheet.
type Contact struct {
	GivenName          string   `json:"givenName,omitempty"`
	FamilyName         string   `json:"familyName,omitempty"`
	EmailAddress       string   `json:"emailAddress,omitempty"`
	PhoneNumber        string   `json:"phoneNumber,omitempty"`
	AddressLines       []string `json:"addressLines,omitempty"`
	Locality           string   `json:"locality,omitempty"`
	AdministrativeArea string   `json:"administrativeArea,omitempty"`
	PostalCode         string   `json:"postalCode,omitempty"`
	CountryCode        string   `json:"countryCode,omitempty"`
}

// Payment is what the sheet hands over when the buyer authorizes.
type Payment struct {
	Token           json.RawMessage `json:"token"`
	BillingContact  *Contact        `json:"billingContact,omitempty"`
	ShippingContact *Contact        `json:"shippingContact,omitempty"`
}

// ConfirmRequest asks the provider to attach a wallet payment to an order.
type ConfirmRequest struct {
	OrderID         string          `json:"orderId"`
	Token           json.RawMessage `json:"token"`
	BillingContact  *Contact        `json:"billingContact,omitempty"`
	ShippingContact *Contact        `json:"shippingContact,omitempty"`
}

// Bridge is the provider SDK's wallet object.
type Bridge interface {
	Config(ctx context.Context) (Config, error)
	ValidateMerchant(ctx context.Context, validationURL string) (MerchantSession, error)
	ConfirmOrder(ctx context.Context, req ConfirmRequest) error
}

// Status is the result reported to the native sheet when it closes.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "STATUS_SUCCESS"
	}
	return "STATUS_FAILURE"
}

// NativeSession is the platform payment sheet. The Session holds its mutex
// while calling these methods, so an implementation must deliver callbacks to
// the Handler asynchronously and never from inside Abort or a Complete call.
type NativeSession interface {
	Begin() error
	Abort()
	CompleteMerchantValidation(session MerchantSession)
	CompletePaymentMethodSelection(newTotal domain.Total)
	CompletePayment(status Status)
}

// Handler receives the native sheet's callbacks. *Session implements it.
type Handler interface {
	OnValidateMerchant(ctx context.Context, validationURL string) error
	OnPaymentMethodSelected(ctx context.Context) error
	OnPaymentAuthorized(ctx context.Context, payment Payment) (*domain.Outcome, error)
	OnCancel(ctx context.Context) error
}

// SessionFactory constructs a native session delivering callbacks to handler.
type SessionFactory func(version int, req domain.PaymentRequest, handler Handler) (NativeSession, error)

// Gateway is the part of the order backend the wallet rail uses.
type Gateway interface {
	CreateWalletOrder(ctx context.Context, cart domain.Cart) (string, error)
	CaptureWalletOrder(ctx context.Context, orderID string) error
}

// Alerter shows a blocking message to the buyer.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// Recorder receives every settled outcome.
type Recorder interface {
	Record(ctx context.Context, o *domain.Outcome)
}

// Options tunes the payment sheet.
type Options struct {
	Total domain.Total
}

// DefaultOptions returns the demo sheet settings.
func DefaultOptions() Options {
	return Options{Total: DefaultTotal()}
}

// Rail is an eligible wallet rail. A nil *Rail is a hidden one.
type Rail struct {
	bridge   Bridge
	factory  SessionFactory
	gateway  Gateway
	alerter  Alerter
	recorder Recorder
	logger   *slog.Logger
	cart     domain.Cart
	config   Config
	opts     Options
}

// NewRail evaluates the eligibility gate. It fails with
// domain.ErrWalletUnavailable when the device or SDK lacks wallet support and
// with domain.ErrWalletIneligible when the provider declines the merchant.
// Either way the rail stays hidden for the life of the page.
//
// A missing SDK must be passed as an untyped nil bridge. A nil pointer of a
// concrete type is a non-nil interface and passes the gate.
func NewRail(
	ctx context.Context,
	platform Platform,
	bridge Bridge,
	factory SessionFactory,
	gateway Gateway,
	cart domain.Cart,
	alerter Alerter,
	recorder Recorder,
	opts Options,
	logger *slog.Logger,
) (*Rail, error) {
	if platform == nil || !platform.SupportsVersion(SessionVersion) || !platform.CanMakePayments() || bridge == nil {
		logger.WarnContext(ctx, "wallet payments are not supported on this device")
		return nil, domain.ErrWalletUnavailable
	}

	cfg, err := bridge.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wallet config: %w", err)
	}
	if !cfg.IsEligible {
		logger.WarnContext(ctx, "wallet payments are not eligible")
		return nil, domain.ErrWalletIneligible
	}

	return &Rail{
		bridge:   bridge,
		factory:  factory,
		gateway:  gateway,
		alerter:  alerter,
		recorder: recorder,
		logger:   logger,
		cart:     cart.Clone(),
		config:   cfg,
		opts:     opts,
	}, nil
}

// ButtonVisible reports whether the wallet button should be rendered.
func (r *Rail) ButtonVisible() bool {
	return r != nil
}

// Begin handles a button click: it builds the payment request, creates the
// native session and presents the sheet.
func (r *Rail) Begin(ctx context.Context) (*Session, error) {
	if r == nil {
		return nil, domain.ErrWalletUnavailable
	}

	req, err := BuildPaymentRequest(r.config, r.opts.Total)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      uuid.NewString(),
		rail:    r,
		request: req,
		state:   StateCreated,
	}

	native, err := r.factory(SessionVersion, req, s)
	if err != nil {
		return nil, fmt.Errorf("create native wallet session: %w", err)
	}
	s.native = native

	if err := native.Begin(); err != nil {
		return nil, fmt.Errorf("begin native wallet session: %w", err)
	}
	return s, nil
}
