package domain

import (
	"fmt"

	apperrors "github.com/utafrali/paycheckout/pkg/errors"
)

// Billing address field names, as sent by the buyer form.
const (
	FieldAddressLine1 = "addressLine1"
	FieldAddressLine2 = "addressLine2"
	FieldAdminArea1   = "adminArea1"
	FieldAdminArea2   = "adminArea2"
	FieldCountryCode  = "countryCode"
	FieldPostalCode   = "postalCode"
)

// BillingAddress holds the optional billing fields collected next to the
// hosted card fields. It is a plain value; copying it takes a snapshot.
type BillingAddress struct {
	AddressLine1 string `json:"addressLine1,omitempty"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	AdminArea1   string `json:"adminArea1,omitempty"`
	AdminArea2   string `json:"adminArea2,omitempty"`
	CountryCode  string `json:"countryCode,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
}

// BillingFields lists the accepted field names in form order.
func BillingFields() []string {
	return []string{
		FieldAddressLine1,
		FieldAddressLine2,
		FieldAdminArea1,
		FieldAdminArea2,
		FieldCountryCode,
		FieldPostalCode,
	}
}

// SetField updates one field by name. Values are not validated.
func (b *BillingAddress) SetField(field, value string) error {
	switch field {
	case FieldAddressLine1:
		b.AddressLine1 = value
	case FieldAddressLine2:
		b.AddressLine2 = value
	case FieldAdminArea1:
		b.AdminArea1 = value
	case FieldAdminArea2:
		b.AdminArea2 = value
	case FieldCountryCode:
		b.CountryCode = value
	case FieldPostalCode:
		b.PostalCode = value
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown billing address field %q", field))
	}
	return nil
}

// IsZero reports whether no field has been set.
func (b BillingAddress) IsZero() bool {
	return b == BillingAddress{}
}
