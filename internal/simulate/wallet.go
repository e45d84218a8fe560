package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/internal/wallet"
)

// ErrSessionActive is returned when a sheet is presented while another one
// is still open. The native wallet allows one sheet at a time.
var ErrSessionActive = errors.New("a wallet payment sheet is already open")

// Platform reports scripted device capabilities.
type Platform struct {
	// Version is the highest native session version supported.
	Version int
	CanPay  bool
}

var _ wallet.Platform = Platform{}

// NewPlatform returns a device supporting the current session version.
func NewPlatform() Platform {
	return Platform{Version: wallet.SessionVersion, CanPay: true}
}

// SupportsVersion reports whether v is at most the platform's version.
func (p Platform) SupportsVersion(v int) bool {
	return v <= p.Version
}

// CanMakePayments reports whether a card is provisioned.
func (p Platform) CanMakePayments() bool {
	return p.CanPay
}

// Bridge plays the provider SDK's wallet object.
type Bridge struct {
	WalletConfig wallet.Config
	ConfigErr    error
	ValidateErr  error
	ConfirmErr   error

	mu        sync.Mutex
	confirmed []wallet.ConfirmRequest
}

var _ wallet.Bridge = (*Bridge)(nil)

// NewBridge returns an eligible bridge that leaves every request field to
// the rail's defaults.
func NewBridge() *Bridge {
	return &Bridge{WalletConfig: wallet.Config{IsEligible: true}}
}

// Config returns the scripted configuration.
func (b *Bridge) Config(_ context.Context) (wallet.Config, error) {
	if b.ConfigErr != nil {
		return wallet.Config{}, b.ConfigErr
	}
	return b.WalletConfig, nil
}

// ValidateMerchant issues an opaque merchant session for validationURL.
func (b *Bridge) ValidateMerchant(ctx context.Context, validationURL string) (wallet.MerchantSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.ValidateErr != nil {
		return nil, b.ValidateErr
	}
	raw, err := json.Marshal(map[string]string{
		"merchantSessionIdentifier": uuid.NewString(),
		"validationUrl":             validationURL,
	})
	if err != nil {
		return nil, fmt.Errorf("encode merchant session: %w", err)
	}
	return wallet.MerchantSession(raw), nil
}

// ConfirmOrder records req and returns the scripted error.
func (b *Bridge) ConfirmOrder(ctx context.Context, req wallet.ConfirmRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.confirmed = append(b.confirmed, req)
	b.mu.Unlock()
	return b.ConfirmErr
}

// Confirmed returns every confirm request received, oldest first.
func (b *Bridge) Confirmed() []wallet.ConfirmRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wallet.ConfirmRequest(nil), b.confirmed...)
}

// SheetFactory creates native sheets and lets at most one be open at a time.
type SheetFactory struct {
	mu     sync.Mutex
	open   *Sheet
	sheets []*Sheet
}

// NewSheetFactory returns an empty factory.
func NewSheetFactory() *SheetFactory {
	return &SheetFactory{}
}

// New is a wallet.SessionFactory.
func (f *SheetFactory) New(version int, req domain.PaymentRequest, handler wallet.Handler) (wallet.NativeSession, error) {
	if version != wallet.SessionVersion {
		return nil, fmt.Errorf("unsupported wallet session version %d", version)
	}
	s := &Sheet{factory: f, version: version, request: req, handler: handler}

	f.mu.Lock()
	f.sheets = append(f.sheets, s)
	f.mu.Unlock()
	return s, nil
}

// Latest returns the most recently created sheet, or nil.
func (f *SheetFactory) Latest() *Sheet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sheets) == 0 {
		return nil
	}
	return f.sheets[len(f.sheets)-1]
}

// Created returns how many sheets were constructed.
func (f *SheetFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sheets)
}

func (f *SheetFactory) present(s *Sheet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open != nil && f.open != s {
		return ErrSessionActive
	}
	f.open = s
	return nil
}

func (f *SheetFactory) dismiss(s *Sheet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open == s {
		f.open = nil
	}
}

// Sheet plays the native payment sheet. The Begin, Abort and Complete*
// methods are what the rail calls; ValidateMerchant, SelectMethod, Authorize
// and Cancel act as the buyer and the platform, delivering callbacks to the
// rail's handler.
type Sheet struct {
	factory *SheetFactory
	version int
	request domain.PaymentRequest
	handler wallet.Handler

	mu              sync.Mutex
	merchantSession wallet.MerchantSession
	totals          []domain.Total
	status          *wallet.Status
	aborted         bool
}

var _ wallet.NativeSession = (*Sheet)(nil)

// Begin presents the sheet.
func (s *Sheet) Begin() error {
	return s.factory.present(s)
}

// Abort closes the sheet without a payment.
func (s *Sheet) Abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.factory.dismiss(s)
}

// CompleteMerchantValidation accepts the merchant session.
func (s *Sheet) CompleteMerchantValidation(session wallet.MerchantSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchantSession = append(wallet.MerchantSession(nil), session...)
}

// CompletePaymentMethodSelection records the total shown to the buyer.
func (s *Sheet) CompletePaymentMethodSelection(newTotal domain.Total) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = append(s.totals, newTotal)
}

// CompletePayment closes the sheet with status.
func (s *Sheet) CompletePayment(status wallet.Status) {
	s.mu.Lock()
	s.status = &status
	s.mu.Unlock()
	s.factory.dismiss(s)
}

// ValidateMerchant asks the rail to validate the merchant.
func (s *Sheet) ValidateMerchant(ctx context.Context) error {
	return s.handler.OnValidateMerchant(ctx, "https://apple-pay-gateway.apple.com/paymentservices/startSession")
}

// SelectMethod reports that the buyer picked a card.
func (s *Sheet) SelectMethod(ctx context.Context) error {
	return s.handler.OnPaymentMethodSelected(ctx)
}

// Authorize reports that the buyer authorized payment.
func (s *Sheet) Authorize(ctx context.Context, payment wallet.Payment) (*domain.Outcome, error) {
	return s.handler.OnPaymentAuthorized(ctx, payment)
}

// Cancel reports that the buyer dismissed the sheet.
func (s *Sheet) Cancel(ctx context.Context) error {
	err := s.handler.OnCancel(ctx)
	if err == nil {
		s.factory.dismiss(s)
	}
	return err
}

// Version returns the session version the sheet was built with.
func (s *Sheet) Version() int {
	return s.version
}

// Request returns the payment request the sheet was built with.
func (s *Sheet) Request() domain.PaymentRequest {
	return s.request
}

// MerchantSession returns the accepted merchant session, if any.
func (s *Sheet) MerchantSession() wallet.MerchantSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merchantSession
}

// Totals returns every total passed to CompletePaymentMethodSelection.
func (s *Sheet) Totals() []domain.Total {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Total(nil), s.totals...)
}

// Status returns the completion status and whether the payment completed.
func (s *Sheet) Status() (wallet.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return 0, false
	}
	return *s.status, true
}

// Aborted reports whether the rail aborted the sheet.
func (s *Sheet) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// DemoPayment is a payment as the sheet hands it over for a test card.
func DemoPayment() wallet.Payment {
	return wallet.Payment{
		Token: json.RawMessage(`{"paymentData":{"version":"EC_v1","data":"c2FuZGJveA=="},"transactionIdentifier":"` + uuid.NewString() + `"}`),
		BillingContact: &wallet.Contact{
			GivenName:    "Ada",
			FamilyName:   "Lovelace",
			EmailAddress: "ada@example.com",
			AddressLines: []string{"1 Main Street"},
			Locality:     "London",
			PostalCode:   "EC1A 1BB",
			CountryCode:  "GB",
		},
	}
}
