package service

import "errors"

var (
	// ErrMalformedWebhook is the only webhook failure reported back to the
	// provider; well-formed deliveries that match nothing are acknowledged.
	ErrMalformedWebhook     = errors.New("malformed webhook payload")
	ErrPaymentNotRefundable = errors.New("payment is not completed")
	ErrInvalidRefundAmount  = errors.New("refund amount must be positive and not exceed the payment amount")
)
