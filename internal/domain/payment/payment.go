// Package payment abstracts the external payment provider: hosted checkout
// sessions, payment intents, and signature-verified webhook events. The
// concrete provider client is injected at construction time; nothing in this
// package touches process-global provider state.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for provider interactions.
var (
	// ErrProvider wraps any failure reported by the payment provider.
	ErrProvider = errors.New("payment provider error")
	// ErrBadSignature is returned when a webhook payload fails signature
	// verification.
	ErrBadSignature = errors.New("invalid webhook signature")
)

// Session is a provider-hosted checkout page for a single order.
type Session struct {
	ID  string
	URL string
}

// SessionRequest describes the hosted checkout session to create: one
// synthetic line item covering the whole order total.
type SessionRequest struct {
	OrderID     int64
	UserID      int64
	Amount      decimal.Decimal
	Description string
	SuccessURL  string
	CancelURL   string
}

// Intent is a provider-side object representing a single planned charge,
// created and cancelable independently of a hosted session.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	// OrderID and UserID are parsed from the intent's metadata; zero when
	// the metadata is absent or malformed.
	OrderID int64
	UserID  int64
}

// IntentRequest describes a direct payment intent to create.
type IntentRequest struct {
	OrderID int64
	UserID  int64
	Amount  decimal.Decimal
	// IdempotencyKey dedupes retried creations at the provider.
	IdempotencyKey string
}

// Provider is the payment processor client surface used by the order service.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) error
}

// EventType identifies a webhook event kind.
type EventType string

// EventCheckoutCompleted signals that the buyer finished a hosted checkout
// session; its metadata carries the order ID.
const EventCheckoutCompleted EventType = "checkout.session.completed"

// Event is a verified provider-to-application notification.
type Event struct {
	ID        string
	Type      EventType
	OrderID   int64
	SessionID string
}

// EventVerifier authenticates a raw webhook delivery using the provider's
// shared-secret signature scheme and decodes it into an Event.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}

// MinorUnits converts a monetary amount to integer minor units (cents).
// The conversion is exact: amounts with sub-cent precision are rejected
// rather than rounded, so 19.99 always maps to 1999.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	cents := amount.Shift(2)
	if !cents.IsInteger() {
		return 0, errors.Errorf("amount %s has sub-cent precision", amount)
	}
	return cents.IntPart(), nil
}
