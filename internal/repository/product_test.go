package repository

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

func TestBuildListQuery_NoFilter(t *testing.T) {
	sql, args, err := buildListQuery(product.ListFilter{})
	require.NoError(t, err)

	assert.NotContains(t, sql, "WHERE")
	assert.Contains(t, sql, "ORDER BY id")
	assert.Empty(t, args)
}

func TestBuildListQuery_Search(t *testing.T) {
	sql, args, err := buildListQuery(product.ListFilter{Search: "waffle"})
	require.NoError(t, err)

	assert.Contains(t, sql, "category ILIKE $1")
	require.Len(t, args, 1)
	assert.Equal(t, "%waffle%", args[0])
}

func TestBuildListQuery_PriceBounds(t *testing.T) {
	minP := decimal.RequireFromString("5.00")
	maxP := decimal.RequireFromString("20.00")

	sql, args, err := buildListQuery(product.ListFilter{PriceMin: &minP, PriceMax: &maxP})
	require.NoError(t, err)

	// price_min is a lower bound and price_max an upper bound.
	assert.Contains(t, sql, "price >= $1")
	assert.Contains(t, sql, "price <= $2")
	require.Len(t, args, 2)
	assert.True(t, minP.Equal(args[0].(decimal.Decimal)))
	assert.True(t, maxP.Equal(args[1].(decimal.Decimal)))
}

func TestBuildListQuery_Combined(t *testing.T) {
	minP := decimal.RequireFromString("1.00")

	sql, args, err := buildListQuery(product.ListFilter{Search: "cake", PriceMin: &minP})
	require.NoError(t, err)

	assert.Contains(t, sql, "ILIKE $1")
	assert.Contains(t, sql, "price >= $2")
	assert.Len(t, args, 2)
}
