package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

type cartItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   productResponse `json:"product"`
}

func toCartItemResponse(item cart.Item) cartItemResponse {
	return cartItemResponse{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Product:   toProductResponse(item.Product),
	}
}

func (h *Handler) listCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.ListForUser(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	out := make([]cartItemResponse, len(items))
	for i, item := range items {
		out[i] = toCartItemResponse(item)
	}
	respondJSON(w, http.StatusOK, out)
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// addCartItem puts a product in the caller's cart. Adding a product that is
// already in the cart accumulates the quantity onto the existing row.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	// Validate the product up front so a dangling product ID gets a clean
	// 404 instead of a foreign-key error.
	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	item := cart.Item{
		UserID:    currentUser(r.Context()).ID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Product:   *p,
	}
	if err := h.carts.Add(r.Context(), &item); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartItemResponse(item))
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, cart.ErrNotFound.Error())
		return
	}

	var req updateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	item, err := h.carts.UpdateQuantity(r.Context(), currentUser(r.Context()).ID, id, req.Quantity)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	p, err := h.products.GetByID(r.Context(), item.ProductID)
	if err != nil && !errors.Is(err, product.ErrNotFound) {
		h.respondDomainError(w, r, err)
		return
	}
	if p != nil {
		item.Product = *p
	}
	respondJSON(w, http.StatusOK, toCartItemResponse(*item))
}

func (h *Handler) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, cart.ErrNotFound.Error())
		return
	}

	if err := h.carts.Delete(r.Context(), currentUser(r.Context()).ID, id); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
