package wallet

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/pkg/validator"
)

// RequestDefaults fills every payment request field the provider left empty.
var RequestDefaults = Config{
	CountryCode:          "GB",
	CurrencyCode:         "GBP",
	MerchantCapabilities: []string{"supports3DS"},
	SupportedNetworks:    []string{"visa", "masterCard", "amex"},
}

// RequiredBillingContactFields are collected on every sheet. No shipping
// contact is requested.
var RequiredBillingContactFields = []string{"name", "phone", "email", "postalAddress"}

// DefaultTotal is the demo total line.
func DefaultTotal() domain.Total {
	return domain.Total{
		Label:  "Demo (Card is not charged)",
		Amount: decimal.RequireFromString("10.00"),
		Type:   "final",
	}
}

// BuildPaymentRequest merges cfg over RequestDefaults and validates the result.
func BuildPaymentRequest(cfg Config, total domain.Total) (domain.PaymentRequest, error) {
	req := domain.PaymentRequest{
		CountryCode:                   orDefault(cfg.CountryCode, RequestDefaults.CountryCode),
		CurrencyCode:                  orDefault(cfg.CurrencyCode, RequestDefaults.CurrencyCode),
		MerchantCapabilities:          orDefaultList(cfg.MerchantCapabilities, RequestDefaults.MerchantCapabilities),
		SupportedNetworks:             orDefaultList(cfg.SupportedNetworks, RequestDefaults.SupportedNetworks),
		RequiredBillingContactFields:  slices.Clone(RequiredBillingContactFields),
		RequiredShippingContactFields: []string{},
		Total:                         total,
	}

	if err := validator.Validate(req); err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("build payment request: %w", err)
	}
	return req, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultList(v, def []string) []string {
	if len(v) == 0 {
		return slices.Clone(def)
	}
	return slices.Clone(v)
}
