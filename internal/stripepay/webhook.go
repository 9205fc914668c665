package stripepay

import (
	"encoding/json"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xenking/storefront/internal/domain/payment"
)

var _ payment.EventVerifier = (*EventVerifier)(nil)

// EventVerifier authenticates webhook deliveries against the endpoint's
// signing secret and decodes them into provider-neutral events.
type EventVerifier struct {
	secret string
}

// NewEventVerifier creates a verifier for the given webhook signing secret.
func NewEventVerifier(secret string) *EventVerifier {
	return &EventVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against the payload and decodes
// the event. Checkout-session events carry the order ID in their metadata;
// other event types are returned with only ID and type set so callers can
// acknowledge and ignore them.
func (v *EventVerifier) Verify(payload []byte, signature string) (*payment.Event, error) {
	ev, err := webhook.ConstructEvent(payload, signature, v.secret)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrBadSignature, "%s", err)
	}

	out := &payment.Event{
		ID:   ev.ID,
		Type: payment.EventType(ev.Type),
	}
	if out.Type != payment.EventCheckoutCompleted {
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
		return nil, errors.Wrap(err, "decode checkout session")
	}
	out.SessionID = session.ID
	if id, err := strconv.ParseInt(session.Metadata[metaOrderID], 10, 64); err == nil {
		out.OrderID = id
	}
	return out, nil
}
