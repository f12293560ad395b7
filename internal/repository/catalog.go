package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, image_url, price, currency, stock, created_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p        domain.Product
		imageURL sql.NullString
		price    decimal.NullDecimal
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &imageURL, &price, &p.Currency, &p.Stock, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ImageURL = imageURL.String
	if price.Valid {
		p.Price = &price.Decimal
	}
	return &p, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}
	return product, nil
}

func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	products := make(map[int64]*domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

// UpsertProduct inserts the product, or overwrites it when ID is already
// taken. A zero ID lets the database assign one.
func (r *Repository) UpsertProduct(ctx context.Context, product *domain.Product) error {
	var price decimal.NullDecimal
	if product.Price != nil {
		price = decimal.NewNullDecimal(*product.Price)
	}
	currency := product.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	if product.ID == 0 {
		query := `INSERT INTO products (name, description, image_url, price, currency, stock)
		          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
		err := r.db.QueryRowContext(ctx, query,
			product.Name, product.Description, nullString(product.ImageURL), price, currency, product.Stock,
		).Scan(&product.ID, &product.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	}

	query := `INSERT INTO products (id, name, description, image_url, price, currency, stock)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (id) DO UPDATE SET
	              name = EXCLUDED.name,
	              description = EXCLUDED.description,
	              image_url = EXCLUDED.image_url,
	              price = EXCLUDED.price,
	              currency = EXCLUDED.currency,
	              stock = EXCLUDED.stock
	          RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		product.ID, product.Name, product.Description, nullString(product.ImageURL), price, currency, product.Stock,
	).Scan(&product.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *Repository) SetPrice(ctx context.Context, productID int64, price *decimal.Decimal) error {
	var value decimal.NullDecimal
	if price != nil {
		value = decimal.NewNullDecimal(*price)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE products SET price = $1 WHERE id = $2`, value, productID)
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}
