package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/go-chi/chi/v5"
)

type cartService interface {
	Snapshot(ctx context.Context, sessionID string) (*domain.CartSnapshot, error)
	Add(ctx context.Context, sessionID string, productID int64, quantity int) error
	UpdateQuantity(ctx context.Context, sessionID string, productID int64, quantity int) error
	Remove(ctx context.Context, sessionID string, productID int64) error
	Clear(ctx context.Context, sessionID string) error
}

type CartHandler struct {
	carts    cartService
	sessions sessions
}

func NewCartHandler(carts cartService, s sessions) *CartHandler {
	return &CartHandler{carts: carts, sessions: s}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"min=1"`
}

// Quantity is a pointer so that an explicit 0 (remove) differs from a
// missing field.
type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

// GET /checkout/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := h.sessions.current(w, r)

	snapshot, err := h.carts.Snapshot(ctx, sessionID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, snapshot)
}

// DELETE /checkout/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := h.sessions.current(w, r)

	if err := h.carts.Clear(ctx, sessionID); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, MessageResponse{Success: true, Message: "Cart cleared"})
}

// POST /checkout/cart/add
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := h.sessions.current(w, r)

	var req AddItemRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.carts.Add(ctx, sessionID, req.ProductID, req.Quantity); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, MessageResponse{Success: true, Message: "Item added to cart"})
}

// PUT /checkout/cart/item/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := h.sessions.current(w, r)

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.carts.UpdateQuantity(ctx, sessionID, productID, *req.Quantity); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, MessageResponse{Success: true, Message: "Cart updated"})
}

// DELETE /checkout/cart/item/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := h.sessions.current(w, r)

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.carts.Remove(ctx, sessionID, productID); err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, MessageResponse{Success: true, Message: "Item removed from cart"})
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return positiveIDParam(w, r, "product_id")
}

func positiveIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(r.Context(), w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
