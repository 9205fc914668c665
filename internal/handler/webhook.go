package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// paymentWebhook receives provider event deliveries. The payload signature is
// the sole authentication; unverifiable deliveries get a 400 and processing
// failures a 500 so the provider retries them.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		zctx.From(r.Context()).Warn("webhook verification failed", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.orders.ApplyEvent(r.Context(), ev); err != nil {
		zctx.From(r.Context()).Error("webhook processing failed",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
