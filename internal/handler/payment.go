package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/order"
)

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// initiatePayment creates a payment intent for one of the caller's pending
// orders. Repeated calls for the same order reuse the provider-side intent.
func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}

	intent, err := h.orders.InitiatePayment(r.Context(), currentUser(r.Context()), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, intentResponse{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
	})
}

type cancelPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// cancelPayment cancels an intent tied to the caller's order. Intents that
// reference another user or order are reported as not found.
func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}

	var req cancelPaymentRequest
	if err := decodeJSON(r, &req); err != nil || req.PaymentIntentID == "" {
		respondError(w, http.StatusBadRequest, "payment_intent_id is required")
		return
	}

	if err := h.orders.CancelPayment(r.Context(), currentUser(r.Context()), id, req.PaymentIntentID); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
