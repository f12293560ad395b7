package domain

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRefunded
}

// CanTransitionTo mirrors OrderStatus.CanTransitionTo. A FAILED payment may
// still complete when the provider reports a late success.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	case PaymentStatusRefunded:
		return false
	}
	return next != PaymentStatusPending
}

// OrderStatus returns the order status a settled payment propagates to.
func (s PaymentStatus) OrderStatus() OrderStatus {
	switch s {
	case PaymentStatusProcessing:
		return OrderStatusProcessing
	case PaymentStatusCompleted:
		return OrderStatusCompleted
	case PaymentStatusFailed:
		return OrderStatusFailed
	case PaymentStatusRefunded:
		return OrderStatusRefunded
	}
	return OrderStatusPending
}

func (s PaymentStatus) String() string {
	return string(s)
}
