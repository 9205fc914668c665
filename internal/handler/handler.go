// Package handler exposes the storefront over HTTP: public catalog reads,
// authenticated cart and order operations, payment endpoints, and the
// provider webhook. Handlers decode requests, delegate to the domain layer,
// and map domain errors to JSON error responses.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Handler serves the storefront HTTP API.
type Handler struct {
	products product.Repository
	carts    cart.Repository
	users    user.Repository
	orders   *order.Service
	verifier payment.EventVerifier
	tokens   *auth.TokenManager
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts cart.Repository,
	users user.Repository,
	orders *order.Service,
	verifier payment.EventVerifier,
	tokens *auth.TokenManager,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		users:    users,
		orders:   orders,
		verifier: verifier,
		tokens:   tokens,
	}
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Code: status, Message: message})
}

// respondDomainError maps a domain error to an HTTP status. Unrecognized
// errors are logged and reported as a generic 500 so internals never leak.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrNotPending):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrTotalMismatch):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, payment.ErrProvider):
		respondError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		var iqErr *order.InvalidQuantityError
		var pnfErr *order.ProductNotFoundError
		if errors.As(err, &iqErr) || errors.As(err, &pnfErr) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads the request body into v. Unknown fields are ignored.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
