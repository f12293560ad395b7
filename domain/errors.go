package domain

import "errors"

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrMissingPrice        = errors.New("product has no price")
	ErrCartNotFound        = errors.New("cart not found")
	ErrItemNotFound        = errors.New("item not in cart")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotPayable     = errors.New("order is already settled")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrPaymentNotFound     = errors.New("payment not found")
)
