package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// ErrNotFound is returned when a cart row does not exist or belongs to a
// different user. The two cases are deliberately indistinguishable so that
// row IDs cannot be probed across users.
var ErrNotFound = errors.New("cart item not found")

// Item is a single cart row: a product selected by a user, pending order
// placement. One row per (user, product) pair; repeated adds accumulate
// quantity.
type Item struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int

	// Product is populated on reads that join the catalog; it is the live
	// product, not a price snapshot.
	Product product.Product
}

// Repository defines persistence operations for cart items. Every operation
// is scoped to the owning user.
type Repository interface {
	ListForUser(ctx context.Context, userID int64) ([]Item, error)
	// Add inserts the item or, when the user already has the product in the
	// cart, accumulates the quantity. The stored row is returned.
	Add(ctx context.Context, item *Item) error
	UpdateQuantity(ctx context.Context, userID, id int64, quantity int) (*Item, error)
	Delete(ctx context.Context, userID, id int64) error
}
