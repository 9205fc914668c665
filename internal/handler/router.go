package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Router assembles the HTTP routes. Catalog reads and token endpoints are
// public; cart, order, and payment endpoints require a Bearer access token.
// The webhook sits outside /api and authenticates by payload signature
// instead of a user token.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/products/", h.listProducts)
		r.Get("/products/{id}/", h.getProduct)

		r.Post("/token/", h.issueToken)
		r.Post("/token/refresh/", h.refreshToken)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/products/", h.createProduct)
			// Legacy create route kept for existing clients.
			r.Post("/products/create/", h.createProduct)

			r.Get("/cart/", h.listCart)
			r.Post("/cart/", h.addCartItem)
			r.Put("/cart/{id}/", h.updateCartItem)
			r.Patch("/cart/{id}/", h.updateCartItem)
			r.Delete("/cart/{id}/", h.deleteCartItem)

			r.Get("/orders/", h.listOrders)
			r.Post("/orders/", h.checkout)
			r.Get("/orders/{id}/", h.getOrder)
			r.Delete("/orders/{id}/", h.deleteOrder)

			r.Post("/orders/{id}/payment/initiate/", h.initiatePayment)
			r.Post("/orders/{id}/payment/cancel/", h.cancelPayment)
		})
	})

	r.Post("/webhooks/payment", h.paymentWebhook)

	return r
}

// pathID parses the {id} URL parameter as a positive integer.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
