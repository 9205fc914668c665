package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, sku, name, description, price, category, image, created_at
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, sku, name, description, price, category, image, created_at
		FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (sku, name, description, price, category, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// buildListQuery assembles the catalog listing query from the filter. The
// search term matches the category case-insensitively; the price bounds are
// inclusive and independent.
func buildListQuery(f product.ListFilter) (string, []any, error) {
	q := psql.
		Select("id", "sku", "name", "description", "price", "category", "image", "created_at").
		From("products").
		OrderBy("id")

	if f.Search != "" {
		q = q.Where(sq.ILike{"category": "%" + f.Search + "%"})
	}
	if f.PriceMin != nil {
		q = q.Where(sq.GtOrEq{"price": *f.PriceMin})
	}
	if f.PriceMax != nil {
		q = q.Where(sq.LtOrEq{"price": *f.PriceMax})
	}

	return q.ToSql()
}

// List returns catalog products matching the filter, ordered by ID.
func (r *ProductRepository) List(ctx context.Context, f product.ListFilter) ([]product.Product, error) {
	query, args, err := buildListQuery(f)
	if err != nil {
		return nil, fmt.Errorf("building product query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create persists a new catalog product and fills in its generated fields.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	var sku *string
	if p.SKU != "" {
		sku = &p.SKU
	}

	err := r.pool.QueryRow(ctx, createProductSQL,
		sku, p.Name, p.Description, p.Price, p.Category, p.Image,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		sku   *string
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &sku, &p.Name, &p.Description, &price, &p.Category, &p.Image, &p.CreatedAt,
	)
	if sku != nil {
		p.SKU = *sku
	}
	p.Price = price
	return p, err
}
