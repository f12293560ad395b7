package repository

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
)

// DemoCatalog mirrors the seed migration so the memory store serves the same
// products as a freshly migrated database.
func DemoCatalog() []*domain.Product {
	price := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	return []*domain.Product{
		{ID: 1, Name: "Match Football", Description: "Size 5 training and match ball", ImageURL: "uploads/football.jpg", Price: price("29.99"), Currency: "USD", Stock: 40},
		{ID: 2, Name: "Running Shoes", Description: "Lightweight road running shoes", ImageURL: "uploads/running-shoes.jpg", Price: price("89.50"), Currency: "USD", Stock: 15},
		{ID: 3, Name: "Yoga Mat", Description: "6mm non-slip yoga mat", ImageURL: "uploads/yoga-mat.jpg", Price: price("24.00"), Currency: "USD", Stock: 25},
		{ID: 4, Name: "Adjustable Dumbbell", Description: "2-24kg adjustable dumbbell", Price: price("149.00"), Currency: "USD", Stock: 5},
		{ID: 5, Name: "Team Jersey", Description: "Pre-order, not yet priced", Currency: "USD", Stock: 100},
	}
}

func Seed(ctx context.Context, catalog CatalogRepository, products []*domain.Product) error {
	for _, p := range products {
		if err := catalog.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %d: %w", p.ID, err)
		}
	}
	return nil
}
