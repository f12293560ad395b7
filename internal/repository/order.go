package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_email, user_name, user_phone, shipping_address,
	total_amount, currency, status, session_id, idempotency_key, created_at, updated_at`

type orderLine struct {
	productID int64
	name      string
	quantity  int
	price     decimal.NullDecimal
	stock     int
}

func (r *Repository) CreateOrderFromCart(
	ctx context.Context,
	cartID int64,
	customer domain.CustomerData,
	idempotencyKey string) (*domain.Order, error) {

	var order *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		// Serializes concurrent checkouts of the same cart.
		var sessionID string
		err := tx.QueryRowContext(ctx, `SELECT session_id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&sessionID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		// Product rows are locked in id order so competing carts cannot deadlock.
		if _, err := tx.ExecContext(ctx,
			`SELECT id FROM products
			 WHERE id IN (SELECT product_id FROM cart_items WHERE cart_id = $1)
			 ORDER BY id FOR UPDATE`, cartID); err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		lines, err := loadOrderLines(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.ErrEmptyCart
		}

		order, err = buildOrder(lines, customer, idempotencyKey)
		if err != nil {
			return err
		}
		order.SessionID = sessionID

		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
				 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
				item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}

			res, err := tx.ExecContext(ctx,
				`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
				item.Quantity, item.ProductID)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, item.ProductName)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		if err := touchCart(ctx, tx, cartID); err != nil {
			return err
		}

		return insertOutboxEvent(ctx, tx, order.OrderNumber, EventOrderCreated, orderEventPayload(order))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func loadOrderLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]orderLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ci.product_id, p.name, ci.quantity, p.price, p.stock
		 FROM cart_items ci JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []orderLine
	for rows.Next() {
		var l orderLine
		if err := rows.Scan(&l.productID, &l.name, &l.quantity, &l.price, &l.stock); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

// buildOrder validates every line and snapshots its price. Shared by both
// store implementations so they fail on the same line with the same error.
func buildOrder(lines []orderLine, customer domain.CustomerData, idempotencyKey string) (*domain.Order, error) {
	order := &domain.Order{
		Email:           customer.Email,
		Name:            customer.Name,
		Phone:           customer.Phone,
		ShippingAddress: customer.ShippingAddress,
		Currency:        customer.CurrencyOrDefault(),
		Status:          domain.OrderStatusPending,
		IdempotencyKey:  idempotencyKey,
		TotalAmount:     decimal.Zero,
	}

	for _, l := range lines {
		if !l.price.Valid {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingPrice, l.name)
		}
		if l.stock < l.quantity {
			return nil, fmt.Errorf("%w: %s", domain.ErrInsufficientStock, l.name)
		}
		total := l.price.Decimal.Mul(decimal.NewFromInt(int64(l.quantity)))
		order.TotalAmount = order.TotalAmount.Add(total)
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   l.productID,
			ProductName: l.name,
			Quantity:    l.quantity,
			UnitPrice:   l.price.Decimal,
			TotalPrice:  total,
		})
	}
	return order, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	query := `INSERT INTO orders (order_number, user_email, user_name, user_phone, shipping_address,
	              total_amount, currency, status, session_id, idempotency_key)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT ON CONSTRAINT orders_order_number_key DO NOTHING
	          RETURNING id, created_at, updated_at`

	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number := newOrderNumber()
		err := tx.QueryRowContext(ctx, query,
			number,
			order.Email,
			order.Name,
			nullString(order.Phone),
			order.ShippingAddress,
			order.TotalAmount,
			order.Currency,
			order.Status,
			nullString(order.SessionID),
			nullString(order.IdempotencyKey),
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue // order number collision
		}
		if isUniqueViolation(err, "orders_session_idempotency_key") {
			return ErrDuplicateIdempotencyKey
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order.OrderNumber = number
		return nil
	}
	return errors.New("could not allocate a unique order number")
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o              domain.Order
		phone          sql.NullString
		sessionID      sql.NullString
		idempotencyKey sql.NullString
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.Email,
		&o.Name,
		&phone,
		&o.ShippingAddress,
		&o.TotalAmount,
		&o.Currency,
		&o.Status,
		&sessionID,
		&idempotencyKey,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Phone = phone.String
	o.SessionID = sessionID.String
	o.IdempotencyKey = idempotencyKey.String
	return &o, nil
}

func (r *Repository) getOrderWhere(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if order.Items, err = r.loadOrderItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOrderWhere(ctx, `id = $1`, id)
}

func (r *Repository) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOrderWhere(ctx, `order_number = $1`, orderNumber)
}

// GetOrderByIdempotencyKey only matches orders created from the same session.
func (r *Repository) GetOrderByIdempotencyKey(ctx context.Context, sessionID, key string) (*domain.Order, error) {
	if sessionID == "" || key == "" {
		return nil, domain.ErrOrderNotFound
	}
	return r.getOrderWhere(ctx, `session_id = $1 AND idempotency_key = $2`, sessionID, key)
}

func (r *Repository) loadOrderItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
		 FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func orderEventPayload(order *domain.Order) map[string]any {
	return map[string]any{
		"order_id":     strconv.FormatInt(order.ID, 10),
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"email":        order.Email,
		"total_amount": order.TotalAmount,
		"currency":     order.Currency,
		"items":        order.Items,
	}
}
