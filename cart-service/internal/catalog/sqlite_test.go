package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Repository {
	repo, err := NewRepository(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations("./migrations"))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestGetAllProducts_SeededByMigrations(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.GetAllProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 5)
	assert.Equal(t, int64(1), products[0].ID)
}

func TestGetProduct(t *testing.T) {
	repo := setupTestDB(t)

	p, err := repo.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Fresh Tomatoes 1kg", p.Name)
	assert.Equal(t, "2.99", p.Price.StringFixed(2))
	assert.Equal(t, 50, p.Stock)
	assert.Equal(t, int64(101), p.SellerID)

	item := p.LineItem()
	assert.Equal(t, 50, item.AvailableQuantity)
	assert.Equal(t, 0, item.Quantity)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetProduct(context.Background(), 999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetProducts_SkipsMissing(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.GetProducts(context.Background(), []int64{1, 3, 999})
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, map[int64]int{1: 50, 3: 5}, StockLevels(products))

	empty, err := repo.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSetStock(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.SetStock(ctx, 2, 3))
	p, err := repo.GetProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	assert.ErrorIs(t, repo.SetStock(ctx, 999, 1), ErrProductNotFound)
}
