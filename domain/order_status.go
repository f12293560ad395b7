package domain

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusProcessing    OrderStatus = "PROCESSING"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusCompleted     OrderStatus = "COMPLETED"
	OrderStatusFailed        OrderStatus = "FAILED"
	OrderStatusRefunded      OrderStatus = "REFUNDED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRefunded
}

// IsPayable reports whether a new payment attempt may be started for the order.
func (s OrderStatus) IsPayable() bool {
	return !s.IsTerminal()
}

// CanTransitionTo reports whether an order in status s may be moved to next.
// Writing the current status again is allowed and is a no-op for callers.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case OrderStatusCompleted:
		return next == OrderStatusRefunded
	case OrderStatusRefunded:
		return false
	}
	return next != OrderStatusPending
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
