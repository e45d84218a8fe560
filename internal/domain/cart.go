package domain

import (
	"fmt"

	apperrors "github.com/utafrali/paycheckout/pkg/errors"
	"github.com/utafrali/paycheckout/pkg/validator"
)

// CartItem is a single line of a cart.
type CartItem struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// Cart is the ordered list of items sent to the backend on order creation.
type Cart struct {
	Items []CartItem `json:"cart" validate:"required,min=1,dive"`
}

// NewCart builds a validated cart holding its own copy of items.
func NewCart(items ...CartItem) (Cart, error) {
	c := Cart{Items: append([]CartItem(nil), items...)}
	if err := c.Validate(); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Validate reports an invalid-input error for an empty cart or a bad line.
func (c Cart) Validate() error {
	if err := validator.Validate(c); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("invalid cart: %s", err.Error()))
	}
	return nil
}

// Clone returns a deep copy, so a submitted cart cannot change underneath a request.
func (c Cart) Clone() Cart {
	return Cart{Items: append([]CartItem(nil), c.Items...)}
}
