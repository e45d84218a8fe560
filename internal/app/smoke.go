package app

import (
	"context"
	"errors"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/internal/simulate"
)

// SmokeOptions scripts the provider substitutes for a smoke run.
type SmokeOptions struct {
	// Card rail
	FormInvalid   bool
	CardTokenUsed bool
	NoRestart     bool
	PopupError    bool

	// Wallet rail
	WalletIneligible    bool
	MerchantRejects     bool
	CancelWallet        bool
	ConfirmRejects      bool
	WalletUnsupportedOS bool
}

// SmokeResult is what one smoke run of a rail produced.
type SmokeResult struct {
	Rail    string
	Outcome *domain.Outcome
	Alerts  []string
	Err     error
}

// Smoke rail names.
const (
	SmokeCard    = "card"
	SmokeButtons = "buttons"
	SmokeWallet  = "wallet"
)

// SmokeCard submits the hosted card form once.
func (a *Checkout) SmokeCard(ctx context.Context, opts SmokeOptions) SmokeResult {
	fields := simulate.NewHostedFields()
	fields.CardTokenUsed = opts.CardTokenUsed
	fields.Restartable = !opts.NoRestart
	if opts.FormInvalid {
		fields.Invalid = []string{"number", "expirationDate"}
	}

	alerter := simulate.NewAlerter(a.logger)
	c := a.CardRail(fields, alerter)
	res := SmokeResult{Rail: SmokeCard}

	for field, value := range map[string]string{
		domain.FieldAddressLine1: "1 Main Street",
		domain.FieldAdminArea2:   "London",
		domain.FieldCountryCode:  "GB",
		domain.FieldPostalCode:   "EC1A 1BB",
	} {
		if err := c.SetBillingField(field, value); err != nil {
			res.Err = err
			return res
		}
	}

	res.Outcome, res.Err = c.Submit(ctx)
	res.Alerts = alerter.Messages()
	return res
}

// SmokeButtons pays once through the PayPal buttons path.
func (a *Checkout) SmokeButtons(ctx context.Context, opts SmokeOptions) SmokeResult {
	alerter := simulate.NewAlerter(a.logger)
	c := a.CardRail(simulate.NewHostedFields(), alerter)

	buttons := &simulate.Buttons{CardTokenUsed: opts.CardTokenUsed}
	if !opts.NoRestart {
		buttons.Restarter = &simulate.Restarter{}
	}
	if opts.PopupError {
		buttons.PopupErr = errors.New("buyer closed the popup window")
	}

	res := SmokeResult{Rail: SmokeButtons}
	res.Outcome, res.Err = buttons.Click(ctx, c)
	res.Alerts = alerter.Messages()
	return res
}

// SmokeWallet walks one wallet payment sheet from click to completion.
func (a *Checkout) SmokeWallet(ctx context.Context, opts SmokeOptions) (res SmokeResult) {
	res.Rail = SmokeWallet

	platform := simulate.NewPlatform()
	platform.CanPay = !opts.WalletUnsupportedOS

	bridge := simulate.NewBridge()
	bridge.WalletConfig.IsEligible = !opts.WalletIneligible
	if opts.MerchantRejects {
		bridge.ValidateErr = errors.New("merchant domain is not registered")
	}
	if opts.ConfirmRejects {
		bridge.ConfirmErr = errors.New("payment token rejected")
	}

	factory := simulate.NewSheetFactory()
	alerter := simulate.NewAlerter(a.logger)
	defer func() { res.Alerts = alerter.Messages() }()

	rail, err := a.WalletRail(ctx, platform, bridge, factory.New, alerter)
	if err != nil {
		res.Err = err
		return res
	}

	session, err := rail.Begin(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	sheet := factory.Latest()

	steps := []func(context.Context) error{sheet.ValidateMerchant}
	if opts.CancelWallet {
		steps = append(steps, sheet.Cancel)
	} else {
		steps = append(steps, sheet.SelectMethod, func(ctx context.Context) error {
			_, err := sheet.Authorize(ctx, simulate.DemoPayment())
			return err
		})
	}

	for _, step := range steps {
		if err := step(ctx); err != nil {
			res.Err = err
			break
		}
		if session.State().IsTerminal() {
			break
		}
	}

	res.Outcome = session.Outcome()
	return res
}
