package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (user_id, total_amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	listOrdersSQL = `SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	getOrderSQL = `SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders WHERE user_id = $1 AND id = $2`

	listOrderItemsSQL = `SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY id`

	deleteOrderSQL = `DELETE FROM orders WHERE user_id = $1 AND id = $2`

	insertPaymentEventSQL = `INSERT INTO payment_events (event_id, order_id)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`

	markOrderPaidSQL = `UPDATE orders SET status = 'paid', updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	markOrderFailedSQL = `UPDATE orders SET status = 'failed', updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	failStaleOrdersSQL = `UPDATE orders SET status = 'failed', updated_at = now()
		WHERE status = 'pending' AND created_at < $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and all of its items in one transaction, writing
// the generated IDs and timestamps back into o.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	err = tx.QueryRow(ctx, createOrderSQL, o.UserID, o.TotalAmount, o.Status).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err = tx.QueryRow(ctx, createOrderItemSQL,
			o.ID, item.ProductID, item.Quantity, item.UnitPrice,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("creating order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order: %w", err)
	}
	return nil
}

// ListForUser returns the user's orders with items, newest first.
func (r *OrderRepository) ListForUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %d: %w", userID, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	items, err := r.listItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		o := byID[item.OrderID]
		o.Items = append(o.Items, item)
	}
	return orders, nil
}

// GetForUser returns one of the user's orders with its items. Orders of other
// users are reported as not found.
func (r *OrderRepository) GetForUser(ctx context.Context, userID, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	o.Items, err = r.listItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteForUser removes one of the user's orders; items cascade.
func (r *OrderRepository) DeleteForUser(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, userID, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkPaid records the webhook event and transitions the order pending ->
// paid in one transaction. A previously recorded event makes the whole call
// a no-op, so redelivered events cannot double-apply. An order that is no
// longer pending yields order.ErrNotPending and the event is not recorded.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID int64, eventID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, insertPaymentEventSQL, eventID, orderID)
	if err != nil {
		return false, fmt.Errorf("recording payment event %q: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		// Event already processed.
		return false, nil
	}

	tag, err = tx.Exec(ctx, markOrderPaidSQL, orderID)
	if err != nil {
		return false, fmt.Errorf("marking order %d paid: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		// The order is not pending anymore (or the ID is unknown). Rolling the
		// event insert back keeps the delivery unprocessed, so the provider
		// retries it and the mismatch stays visible.
		return false, fmt.Errorf("applying payment event %q to order %d: %w", eventID, orderID, order.ErrNotPending)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing payment event: %w", err)
	}
	return true, nil
}

// MarkFailed transitions the order pending -> failed. Terminal orders are
// left untouched.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderID int64) error {
	if _, err := r.pool.Exec(ctx, markOrderFailedSQL, orderID); err != nil {
		return fmt.Errorf("marking order %d failed: %w", orderID, err)
	}
	return nil
}

// FailStale marks every pending order created before cutoff as failed.
func (r *OrderRepository) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, failStaleOrdersSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failing stale orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderIDs []int64) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, listOrderItemsSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var item order.Item
	err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice,
	)
	return item, err
}
