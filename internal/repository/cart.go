package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	listCartSQL = `SELECT c.id, c.user_id, c.product_id, c.quantity,
			p.id, p.sku, p.name, p.description, p.price, p.category, p.image, p.created_at
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id`

	addCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, quantity`

	updateCartQuantitySQL = `UPDATE cart_items SET quantity = $3
		WHERE id = $2 AND user_id = $1
		RETURNING product_id`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE id = $2 AND user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ListForUser returns the user's cart rows joined with live catalog data.
func (r *CartRepository) ListForUser(ctx context.Context, userID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart for user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// Add inserts the item or accumulates quantity onto the user's existing row
// for the same product. The stored row's ID and quantity are written back.
func (r *CartRepository) Add(ctx context.Context, item *cart.Item) error {
	err := r.pool.QueryRow(ctx, addCartItemSQL,
		item.UserID, item.ProductID, item.Quantity,
	).Scan(&item.ID, &item.Quantity)
	if err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}

// UpdateQuantity sets the quantity of the user's cart row and returns the
// updated item. Rows of other users are reported as not found.
func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, id int64, quantity int) (*cart.Item, error) {
	item := cart.Item{ID: id, UserID: userID, Quantity: quantity}

	err := r.pool.QueryRow(ctx, updateCartQuantitySQL, userID, id, quantity).
		Scan(&item.ProductID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("updating cart item %d: %w", id, err)
	}
	return &item, nil
}

// Delete removes the user's cart row. Rows of other users are reported as
// not found.
func (r *CartRepository) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCartItemSQL, userID, id)
	if err != nil {
		return fmt.Errorf("deleting cart item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var (
		item cart.Item
		sku  *string
	)
	err := row.Scan(
		&item.ID, &item.UserID, &item.ProductID, &item.Quantity,
		&item.Product.ID, &sku, &item.Product.Name, &item.Product.Description,
		&item.Product.Price, &item.Product.Category, &item.Product.Image,
		&item.Product.CreatedAt,
	)
	if sku != nil {
		item.Product.SKU = *sku
	}
	return item, err
}
