package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
)

func (r *Repository) GetOrCreateCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `INSERT INTO carts (session_id) VALUES ($1)
	          ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
	          RETURNING id, session_id, created_at, updated_at`

	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&cart.ID, &cart.SessionID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	if cart.Items, err = r.loadCartItems(ctx, r.db, cart.ID); err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *Repository) GetCartBySession(ctx context.Context, sessionID string) (*domain.Cart, error) {
	query := `SELECT id, session_id, created_at, updated_at FROM carts WHERE session_id = $1`

	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&cart.ID, &cart.SessionID, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart by session: %w", err)
	}
	if cart.Items, err = r.loadCartItems(ctx, r.db, cart.ID); err != nil {
		return nil, err
	}
	return cart, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *Repository) loadCartItems(ctx context.Context, q querier, cartID int64) ([]domain.CartItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT product_id, quantity, added_at FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// SetItemQuantity stores quantity for the cart line, creating the line when
// the product is not in the cart yet.
func (r *Repository) SetItemQuantity(ctx context.Context, cartID, productID int64, quantity int) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
			 ON CONFLICT ON CONSTRAINT cart_items_cart_product_key DO UPDATE SET quantity = EXCLUDED.quantity`,
			cartID, productID, quantity)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}
		return touchCart(ctx, tx, cartID)
	})
}

func (r *Repository) DeleteItem(ctx context.Context, cartID, productID int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return domain.ErrItemNotFound
		}
		return touchCart(ctx, tx, cartID)
	})
}

func (r *Repository) ClearCart(ctx context.Context, cartID int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		return touchCart(ctx, tx, cartID)
	})
}

func touchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
