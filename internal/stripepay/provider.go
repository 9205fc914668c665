// Package stripepay implements the payment provider and webhook verifier on
// top of the Stripe API. It is the only package that imports the Stripe SDK;
// the rest of the application sees the provider-neutral payment interfaces.
package stripepay

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/xenking/storefront/internal/domain/payment"
)

const currency = "usd"

// Metadata keys attached to every session and intent so webhook events and
// intent lookups can be tied back to local records.
const (
	metaOrderID = "order_id"
	metaUserID  = "user_id"
)

var _ payment.Provider = (*Provider)(nil)

// Provider implements payment.Provider using a dedicated Stripe API client.
type Provider struct {
	api *client.API
}

// New creates a Provider with its own Stripe client bound to secretKey.
func New(secretKey string) *Provider {
	return &Provider{api: client.New(secretKey, nil)}
}

// CreateCheckoutSession opens a hosted checkout page covering the whole order
// total as a single line item.
func (p *Provider) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	cents, err := payment.MinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(cents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.AddMetadata(metaOrderID, strconv.FormatInt(req.OrderID, 10))
	params.AddMetadata(metaUserID, strconv.FormatInt(req.UserID, 10))

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "create checkout session: %s", err)
	}

	return &payment.Session{ID: session.ID, URL: session.URL}, nil
}

// CreateIntent creates a direct payment intent for the order amount. The
// request's idempotency key makes retried creations return the same intent.
func (p *Provider) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	cents, err := payment.MinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(cents),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.AddMetadata(metaOrderID, strconv.FormatInt(req.OrderID, 10))
	params.AddMetadata(metaUserID, strconv.FormatInt(req.UserID, 10))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "create payment intent: %s", err)
	}
	return intentFromStripe(pi), nil
}

// GetIntent fetches an intent and decodes its metadata.
func (p *Provider) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	pi, err := p.api.PaymentIntents.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "get payment intent %s: %s", id, err)
	}
	return intentFromStripe(pi), nil
}

// CancelIntent cancels an uncaptured intent.
func (p *Provider) CancelIntent(ctx context.Context, id string) error {
	_, err := p.api.PaymentIntents.Cancel(id, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return errors.Wrapf(payment.ErrProvider, "cancel payment intent %s: %s", id, err)
	}
	return nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *payment.Intent {
	intent := &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
	// Malformed or missing metadata leaves the IDs zero; callers treat such
	// intents as foreign.
	if v, err := strconv.ParseInt(pi.Metadata[metaOrderID], 10, 64); err == nil {
		intent.OrderID = v
	}
	if v, err := strconv.ParseInt(pi.Metadata[metaUserID], 10, 64); err == nil {
		intent.UserID = v
	}
	return intent
}
