package orders

import "errors"

var (
	ErrEmptyCart          = errors.New("orders: cart is empty")
	ErrNotFound           = errors.New("orders: order not found")
	ErrNotPending         = errors.New("orders: order is no longer pending")
	ErrUnauthorized       = errors.New("orders: order belongs to another buyer")
	ErrProductNotFound    = errors.New("orders: product not found")
	ErrInvalidQuantity    = errors.New("orders: quantity must be greater than zero")
	ErrPaymentNotSettled  = errors.New("orders: payment not settled yet")
	ErrPaymentFailed      = errors.New("orders: payment permanently failed")
	ErrPaymentRefMismatch = errors.New("orders: payment intent does not match the order")

	ErrShippingAddressRequired = errors.New("orders: shipping address is required")
	ErrShippingCityRequired    = errors.New("orders: shipping city is required")
	ErrShippingPhoneRequired   = errors.New("orders: shipping phone is required")
)
