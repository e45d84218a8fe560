package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Total is the amount line shown in the wallet sheet.
type Total struct {
	Label  string          `json:"label" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Type   string          `json:"type" validate:"oneof=final pending"`
}

// MarshalJSON renders the amount with two decimals, the way wallet sheets
// expect it ("10.00", not "10").
func (t Total) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Label  string `json:"label"`
		Amount string `json:"amount"`
		Type   string `json:"type"`
	}{
		Label:  t.Label,
		Amount: t.Amount.StringFixed(2),
		Type:   t.Type,
	})
}

// PaymentRequest describes one wallet payment sheet.
type PaymentRequest struct {
	CountryCode                   string   `json:"countryCode" validate:"iso3166_1_alpha2"`
	CurrencyCode                  string   `json:"currencyCode" validate:"iso4217"`
	MerchantCapabilities          []string `json:"merchantCapabilities" validate:"min=1"`
	SupportedNetworks             []string `json:"supportedNetworks" validate:"min=1"`
	RequiredBillingContactFields  []string `json:"requiredBillingContactFields"`
	RequiredShippingContactFields []string `json:"requiredShippingContactFields"`
	Total                         Total    `json:"total"`
}
