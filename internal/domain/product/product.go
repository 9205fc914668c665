package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          int64
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Image       string
	CreatedAt   time.Time
}

// ListFilter narrows a catalog listing. The zero value matches everything.
type ListFilter struct {
	// Search is a case-insensitive substring match on the category.
	Search string
	// PriceMin is an inclusive lower bound on price.
	PriceMin *decimal.Decimal
	// PriceMax is an inclusive upper bound on price.
	PriceMax *decimal.Decimal
}

// Matches reports whether p satisfies the filter. The repository applies the
// filter in SQL; Matches exists for in-memory implementations and tests.
func (f ListFilter) Matches(p Product) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Category), strings.ToLower(f.Search)) {
		return false
	}
	if f.PriceMin != nil && p.Price.LessThan(*f.PriceMin) {
		return false
	}
	if f.PriceMax != nil && p.Price.GreaterThan(*f.PriceMax) {
		return false
	}
	return true
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, p *Product) error
}
