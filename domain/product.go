package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the slice of the catalog the checkout core reads and decrements.
type Product struct {
	ID          int64
	Name        string
	Description string
	ImageURL    string
	Price       *decimal.Decimal // nil when the product has no price yet
	Currency    string
	Stock       int
	CreatedAt   time.Time
}

func (p *Product) HasPrice() bool {
	return p.Price != nil
}
