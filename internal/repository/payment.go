package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fjod/go_cart/storefront/domain"
)

const paymentColumns = `id, order_id, provider, amount, currency, transaction_id, status, provider_response, created_at, updated_at`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p             domain.Payment
		transactionID sql.NullString
		response      []byte
	)
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Provider,
		&p.Amount,
		&p.Currency,
		&transactionID,
		&p.Status,
		&response,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TransactionID = transactionID.String
	if len(response) > 0 {
		p.ProviderResponse = json.RawMessage(response)
	}
	return &p, nil
}

func (r *Repository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	if payment.Status == "" {
		payment.Status = domain.PaymentStatusPending
	}
	query := `INSERT INTO payments (order_id, provider, amount, currency, status)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		payment.OrderID,
		payment.Provider,
		payment.Amount,
		payment.Currency,
		payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *Repository) RecordPaymentAttempt(ctx context.Context, paymentID int64, attempt domain.PaymentAttempt) (*domain.Payment, error) {
	var payment *domain.Payment
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		payment, _, err = applyPaymentUpdate(ctx, tx, paymentID, paymentUpdate{
			transactionID: attempt.TransactionID,
			status:        attempt.Status,
			orderStatus:   attempt.OrderStatus,
			response:      attempt.ProviderResponse,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *Repository) SettlePayment(ctx context.Context, paymentID int64, settlement domain.Settlement) (*domain.Payment, bool, error) {
	var (
		payment *domain.Payment
		changed bool
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		payment, changed, err = applyPaymentUpdate(ctx, tx, paymentID, paymentUpdate{
			status:      settlement.Status,
			orderStatus: settlement.Status.OrderStatus(),
			response:    settlement.ProviderResponse,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return payment, changed, nil
}

type paymentUpdate struct {
	transactionID string
	status        domain.PaymentStatus
	orderStatus   domain.OrderStatus
	response      json.RawMessage
}

// applyPaymentUpdate locks the payment and its order, then moves the payment
// if the transition rules allow it. The order follows only a payment that
// moved, and only when that payment is the order's latest attempt or the
// outcome settles money (completed or refunded). An outcome replayed for a
// superseded attempt therefore never overrides a newer one.
func applyPaymentUpdate(ctx context.Context, tx *sql.Tx, paymentID int64, u paymentUpdate) (*domain.Payment, bool, error) {
	payment, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock payment: %w", err)
	}

	var orderStatus domain.OrderStatus
	var orderNumber string
	err = tx.QueryRowContext(ctx,
		`SELECT status, order_number FROM orders WHERE id = $1 FOR UPDATE`, payment.OrderID).Scan(&orderStatus, &orderNumber)
	if err != nil {
		return nil, false, fmt.Errorf("lock order: %w", err)
	}

	var latestID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM payments WHERE order_id = $1 ORDER BY id DESC LIMIT 1`, payment.OrderID).Scan(&latestID)
	if err != nil {
		return nil, false, fmt.Errorf("latest payment: %w", err)
	}

	paymentMoves := payment.Status != u.status && payment.Status.CanTransitionTo(u.status)
	orderMoves := paymentMoves && drivesOrder(payment.ID == latestID, u.status) &&
		orderStatus != u.orderStatus && orderStatus.CanTransitionTo(u.orderStatus)

	if paymentMoves {
		payment.Status = u.status
		if u.transactionID != "" {
			payment.TransactionID = u.transactionID
		}
		if len(u.response) > 0 {
			payment.ProviderResponse = u.response
		}
		err := tx.QueryRowContext(ctx,
			`UPDATE payments SET status = $1, transaction_id = $2, provider_response = $3, updated_at = NOW()
			 WHERE id = $4 RETURNING updated_at`,
			payment.Status, nullString(payment.TransactionID), nullJSON(payment.ProviderResponse), payment.ID,
		).Scan(&payment.UpdatedAt)
		if err != nil {
			return nil, false, fmt.Errorf("update payment: %w", err)
		}
	}

	if orderMoves {
		_, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, u.orderStatus, payment.OrderID)
		if err != nil {
			return nil, false, fmt.Errorf("update order status: %w", err)
		}
		orderStatus = u.orderStatus
	}

	if !paymentMoves && !orderMoves {
		return payment, false, nil
	}

	payload := paymentEventPayload(payment, orderNumber, orderStatus)
	if err := insertOutboxEvent(ctx, tx, orderNumber, paymentEventType(payment.Status), payload); err != nil {
		return nil, false, err
	}
	return payment, true, nil
}

func (r *Repository) getPaymentWhere(ctx context.Context, where string, args ...any) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where + ` ORDER BY id DESC LIMIT 1`

	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return payment, nil
}

func (r *Repository) GetPayment(ctx context.Context, orderID int64, transactionID string) (*domain.Payment, error) {
	return r.getPaymentWhere(ctx, `order_id = $1 AND transaction_id = $2`, orderID, transactionID)
}

func (r *Repository) GetPaymentByTransaction(ctx context.Context, provider domain.Provider, transactionID string) (*domain.Payment, error) {
	return r.getPaymentWhere(ctx, `provider = $1 AND transaction_id = $2`, provider, transactionID)
}

func (r *Repository) GetLatestPayment(ctx context.Context, orderID int64) (*domain.Payment, error) {
	return r.getPaymentWhere(ctx, `order_id = $1`, orderID)
}

// drivesOrder reports whether a payment moving to status may carry its
// order along.
func drivesOrder(latest bool, status domain.PaymentStatus) bool {
	return latest || status == domain.PaymentStatusCompleted || status == domain.PaymentStatusRefunded
}

func paymentEventType(status domain.PaymentStatus) string {
	return "payment." + strings.ToLower(string(status))
}

func paymentEventPayload(p *domain.Payment, orderNumber string, orderStatus domain.OrderStatus) map[string]any {
	return map[string]any{
		"payment_id":     strconv.FormatInt(p.ID, 10),
		"order_id":       strconv.FormatInt(p.OrderID, 10),
		"order_number":   orderNumber,
		"provider":       p.Provider,
		"transaction_id": p.TransactionID,
		"status":         p.Status,
		"order_status":   orderStatus,
		"amount":         p.Amount,
		"currency":       p.Currency,
	}
}
