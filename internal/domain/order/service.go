package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Mailer delivers order-confirmation messages. Delivery is best effort; the
// service never fails a checkout over a mail error.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to, name string, o *Order) error
}

// CheckoutItem is one requested order line.
type CheckoutItem struct {
	ProductID int64
	Quantity  int
}

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	Items []CheckoutItem
	// Total, when supplied by the client, is cross-checked against the
	// server-computed total and rejected on mismatch. The server value is
	// authoritative either way.
	Total *decimal.Decimal
}

// CheckoutResult is the outcome of a successfully placed order.
type CheckoutResult struct {
	Order *Order
	// PaymentURL is the provider-hosted checkout page the buyer is
	// redirected to.
	PaymentURL string
}

// Service implements the order-and-payment workflow: atomic order creation
// with captured unit prices, checkout-session orchestration, direct payment
// intents, and webhook-driven status transitions.
type Service struct {
	products product.Repository
	orders   Repository
	provider payment.Provider
	mailer   Mailer
	siteURL  string
	lg       *zap.Logger

	// mailTimeout bounds the detached confirmation-mail delivery.
	mailTimeout time.Duration
}

// NewService creates an order Service with the required dependencies.
// siteURL is the public base URL used to build payment redirect links.
func NewService(
	products product.Repository,
	orders Repository,
	provider payment.Provider,
	mailer Mailer,
	siteURL string,
	lg *zap.Logger,
) *Service {
	return &Service{
		products:    products,
		orders:      orders,
		provider:    provider,
		mailer:      mailer,
		siteURL:     siteURL,
		lg:          lg,
		mailTimeout: 30 * time.Second,
	}
}

// Checkout validates the requested items, snapshots unit prices, creates the
// order atomically, and opens a hosted checkout session with the payment
// provider. When session creation fails the order is compensated to failed
// instead of being left pending.
func (s *Service) Checkout(ctx context.Context, usr *user.User, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Validate quantities and collect product IDs for a single batch fetch.
	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Snapshot unit prices and compute the authoritative total.
	items := make([]Item, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		items[i] = Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
		}
		total = total.Add(items[i].Subtotal())
	}
	total = total.Round(2)

	// A client-supplied total must agree with the computed one; the stored
	// amount is always the server-side sum.
	if req.Total != nil && !req.Total.Equal(total) {
		return nil, ErrTotalMismatch
	}

	o := &Order{
		UserID:      usr.ID,
		TotalAmount: total,
		Status:      StatusPending,
		Items:       items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payment.SessionRequest{
		OrderID:     o.ID,
		UserID:      usr.ID,
		Amount:      o.TotalAmount,
		Description: fmt.Sprintf("Order #%d", o.ID),
		SuccessURL:  fmt.Sprintf("%s/orders/%d?success=true", s.siteURL, o.ID),
		CancelURL:   fmt.Sprintf("%s/orders/%d?success=false", s.siteURL, o.ID),
	})
	if err != nil {
		// Compensate: a pending order with no session can never be paid.
		if ferr := s.orders.MarkFailed(ctx, o.ID); ferr != nil {
			s.lg.Error("mark order failed after provider error",
				zap.Int64("order_id", o.ID),
				zap.Error(ferr),
			)
		}
		o.Status = StatusFailed
		return nil, errors.Wrap(err, "create checkout session")
	}

	s.sendConfirmation(ctx, usr, o)

	return &CheckoutResult{Order: o, PaymentURL: session.URL}, nil
}

// sendConfirmation delivers the order-confirmation mail in the background.
// The mail goes to the order owner; failures are logged and dropped.
func (s *Service) sendConfirmation(ctx context.Context, usr *user.User, o *Order) {
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
	go func() {
		defer cancel()
		if err := s.mailer.SendOrderConfirmation(mailCtx, usr.Email, usr.Name, o); err != nil {
			s.lg.Warn("send order confirmation",
				zap.Int64("order_id", o.ID),
				zap.Error(err),
			)
		}
	}()
}

// InitiatePayment creates a direct payment intent for a pending order owned
// by the caller. The idempotency key is derived from the order ID, so
// retried initiations reuse the provider-side intent.
func (s *Service) InitiatePayment(ctx context.Context, usr *user.User, orderID int64) (*payment.Intent, error) {
	o, err := s.orders.GetForUser(ctx, usr.ID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, ErrNotPending
	}

	intent, err := s.provider.CreateIntent(ctx, payment.IntentRequest{
		OrderID:        o.ID,
		UserID:         usr.ID,
		Amount:         o.TotalAmount,
		IdempotencyKey: fmt.Sprintf("order-%d-intent", o.ID),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return intent, nil
}

// CancelPayment cancels a payment intent for the caller's order. The intent's
// metadata must reference both the order and the calling user; a foreign
// intent is reported as not found rather than cancelled.
func (s *Service) CancelPayment(ctx context.Context, usr *user.User, orderID int64, intentID string) error {
	if _, err := s.orders.GetForUser(ctx, usr.ID, orderID); err != nil {
		return err
	}

	intent, err := s.provider.GetIntent(ctx, intentID)
	if err != nil {
		return errors.Wrap(err, "get payment intent")
	}
	if intent.OrderID != orderID || intent.UserID != usr.ID {
		return ErrNotFound
	}

	if err := s.provider.CancelIntent(ctx, intentID); err != nil {
		return errors.Wrap(err, "cancel payment intent")
	}
	return nil
}

// ApplyEvent processes a verified provider webhook event. Completed checkout
// sessions transition their order pending -> paid; the transition is
// idempotent across redelivered events. Unknown event types are acknowledged
// and ignored.
func (s *Service) ApplyEvent(ctx context.Context, ev *payment.Event) error {
	if ev.Type != payment.EventCheckoutCompleted {
		s.lg.Debug("ignoring webhook event", zap.String("type", string(ev.Type)))
		return nil
	}
	if ev.OrderID == 0 {
		return errors.New("checkout event missing order metadata")
	}

	applied, err := s.orders.MarkPaid(ctx, ev.OrderID, ev.ID)
	if err != nil {
		return errors.Wrap(err, "mark order paid")
	}
	if !applied {
		s.lg.Info("duplicate webhook event",
			zap.String("event_id", ev.ID),
			zap.Int64("order_id", ev.OrderID),
		)
		return nil
	}

	s.lg.Info("order paid",
		zap.Int64("order_id", ev.OrderID),
		zap.String("event_id", ev.ID),
	)
	return nil
}

// FailStalePending fails pending orders older than ttl. It backstops lost
// webhooks so orders cannot stay pending forever.
func (s *Service) FailStalePending(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.orders.FailStale(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, errors.Wrap(err, "fail stale orders")
	}
	if n > 0 {
		s.lg.Info("failed stale pending orders", zap.Int64("count", n))
	}
	return n, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, usr *user.User) ([]Order, error) {
	return s.orders.ListForUser(ctx, usr.ID)
}

// GetOrder returns one of the caller's orders.
func (s *Service) GetOrder(ctx context.Context, usr *user.User, id int64) (*Order, error) {
	return s.orders.GetForUser(ctx, usr.ID, id)
}

// DeleteOrder removes one of the caller's orders.
func (s *Service) DeleteOrder(ctx context.Context, usr *user.User, id int64) error {
	return s.orders.DeleteForUser(ctx, usr.ID, id)
}
