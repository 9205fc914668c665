package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

type orderItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type orderResponse struct {
	ID          int64               `json:"id"`
	Status      order.Status        `json:"status"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Items       []orderItemResponse `json:"items"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return orderResponse{
		ID:          o.ID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Items:       items,
	}
}

type checkoutItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	// UnitPrice is accepted for compatibility and ignored: order prices are
	// always snapshotted from the catalog on the server.
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type checkoutRequest struct {
	Items []checkoutItemRequest `json:"items"`
	// TotalAmount, when present, must equal the server-computed total.
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
}

type checkoutResponse struct {
	Order      orderResponse `json:"order"`
	PaymentURL string        `json:"payment_url"`
}

// checkout places an order from the request items and returns the created
// order together with the hosted payment page URL.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.CheckoutItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.CheckoutItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}

	result, err := h.orders.Checkout(r.Context(), currentUser(r.Context()), order.CheckoutRequest{
		Items: items,
		Total: req.TotalAmount,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		Order:      toOrderResponse(result.Order),
		PaymentURL: result.PaymentURL,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), currentUser(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}

	o, err := h.orders.GetOrder(r.Context(), currentUser(r.Context()), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusNotFound, order.ErrNotFound.Error())
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), currentUser(r.Context()), id); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
