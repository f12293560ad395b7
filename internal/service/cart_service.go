package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	carts   repository.CartRepository
	catalog repository.CatalogRepository
	cache   cache.CartCache
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(carts repository.CartRepository, catalog repository.CatalogRepository, c cache.CartCache) *CartService {
	if c == nil {
		c = cache.Nop{}
	}
	return &CartService{
		carts:   carts,
		catalog: catalog,
		cache:   c,
	}
}

func (s *CartService) GetOrCreate(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return s.carts.GetOrCreateCart(ctx, sessionID)
}

// Cart returns the session's cart lines, served from cache when possible.
// A session without a cart gets an empty one that is not persisted.
func (s *CartService) Cart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("cart cache get failed", "session_id", sessionID, "error", err)
		}

		cart, errGet := s.carts.GetCartBySession(ctx, sessionID)
		if errors.Is(errGet, domain.ErrCartNotFound) {
			now := time.Now()
			return &domain.Cart{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		if errSet := s.cache.Set(ctx, sessionID, cart); errSet != nil {
			logger.FromContext(ctx).Warn("cart cache set failed", "session_id", sessionID, "error", errSet)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// Add puts quantity units of a product in the cart. An existing line is
// increased, and the summed quantity must still be in stock.
func (s *CartService) Add(ctx context.Context, sessionID string, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Stock < quantity {
		return domain.ErrInsufficientStock
	}

	cart, err := s.carts.GetOrCreateCart(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}

	if line, ok := cart.Item(productID); ok {
		quantity += line.Quantity
		if product.Stock < quantity {
			return domain.ErrInsufficientStock
		}
	}

	if err := s.carts.SetItemQuantity(ctx, cart.ID, productID, quantity); err != nil {
		return fmt.Errorf("set item quantity: %w", err)
	}

	s.invalidateCache(ctx, sessionID)
	return nil
}

// UpdateQuantity replaces a line's quantity. Zero removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}

	cart, err := s.carts.GetCartBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := cart.Item(productID); !ok {
		return domain.ErrItemNotFound
	}

	if quantity == 0 {
		if err := s.carts.DeleteItem(ctx, cart.ID, productID); err != nil {
			return err
		}
		s.invalidateCache(ctx, sessionID)
		return nil
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Stock < quantity {
		return domain.ErrInsufficientStock
	}

	if err := s.carts.SetItemQuantity(ctx, cart.ID, productID, quantity); err != nil {
		return fmt.Errorf("set item quantity: %w", err)
	}

	s.invalidateCache(ctx, sessionID)
	return nil
}

func (s *CartService) Remove(ctx context.Context, sessionID string, productID int64) error {
	return s.UpdateQuantity(ctx, sessionID, productID, 0)
}

// Snapshot prices the cart against the live catalog. Lines whose product no
// longer exists are skipped and a missing price counts as zero.
func (s *CartService) Snapshot(ctx context.Context, sessionID string) (*domain.CartSnapshot, error) {
	snapshot := &domain.CartSnapshot{Items: []domain.CartSnapshotItem{}, Total: decimal.Zero}

	cart, err := s.Cart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return snapshot, nil
	}

	ids := make([]int64, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		price := decimal.Zero
		if product.HasPrice() {
			price = *product.Price
		}
		lineTotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))

		var image *string
		if product.ImageURL != "" {
			img := product.ImageURL
			image = &img
		}

		snapshot.Items = append(snapshot.Items, domain.CartSnapshotItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       item.Quantity,
			UnitPrice:      price,
			TotalPrice:     lineTotal,
			StockAvailable: product.Stock,
			Image:          image,
		})
		snapshot.Total = snapshot.Total.Add(lineTotal)
		snapshot.ItemCount += item.Quantity
	}
	return snapshot, nil
}

// Clear empties the cart. A session without a cart is not an error.
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	cart, err := s.carts.GetCartBySession(ctx, sessionID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.carts.ClearCart(ctx, cart.ID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	s.invalidateCache(ctx, sessionID)
	return nil
}

// Invalidate drops the cached lines of a session, e.g. after checkout
// emptied its cart.
func (s *CartService) Invalidate(ctx context.Context, sessionID string) {
	s.invalidateCache(ctx, sessionID)
}

func (s *CartService) invalidateCache(ctx context.Context, sessionID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(cctx, sessionID); err != nil {
		logger.FromContext(ctx).Warn("cart cache invalidate failed", "session_id", sessionID, "error", err)
	}
}
