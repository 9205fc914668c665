package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the payment lifecycle state of an order.
type Status string

const (
	// StatusPending is the initial state: the order exists but no payment
	// has been confirmed.
	StatusPending Status = "pending"
	// StatusPaid is reached only through a verified provider webhook event.
	StatusPaid Status = "paid"
	// StatusFailed is reached when checkout-session creation fails or a
	// pending order goes stale without payment.
	StatusFailed Status = "failed"
)

// Sentinel errors for order operations.
var (
	ErrNotFound      = errors.New("order not found")
	ErrEmptyItems    = errors.New("items required")
	ErrNotPending    = errors.New("payment already processed or cancelled")
	ErrTotalMismatch = errors.New("total_amount does not match order items")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// Order is the durable record of a placed purchase.
type Order struct {
	ID          int64
	UserID      int64
	TotalAmount decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Items       []Item
}

// Item is an order line with the unit price captured at order-creation time.
// Later catalog price changes never alter historical orders.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns quantity × unit price for this line.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository defines persistence operations for orders. Reads and deletes are
// scoped to the owning user; missing and foreign rows are both ErrNotFound.
type Repository interface {
	// Create persists the order and all of its items in one transaction.
	Create(ctx context.Context, o *Order) error
	ListForUser(ctx context.Context, userID int64) ([]Order, error)
	GetForUser(ctx context.Context, userID, id int64) (*Order, error)
	DeleteForUser(ctx context.Context, userID, id int64) error

	// MarkPaid transitions the order pending -> paid, recording eventID so
	// redelivered webhook events are no-ops. It returns false when the event
	// was already processed, and ErrNotPending when the order is missing or
	// no longer pending; in that case the event stays unrecorded so a later
	// redelivery is retried rather than silently absorbed.
	MarkPaid(ctx context.Context, orderID int64, eventID string) (bool, error)
	// MarkFailed transitions the order pending -> failed. Orders already in
	// a terminal state are left untouched.
	MarkFailed(ctx context.Context, orderID int64) error
	// FailStale marks every pending order created before cutoff as failed
	// and returns the number of orders transitioned.
	FailStale(ctx context.Context, cutoff time.Time) (int64, error)
}
