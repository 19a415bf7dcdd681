package catalog

import (
	"context"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupCatalogDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	products := `
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  image TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL,
  count_in_stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(products).Error)
	return db
}

func TestGetProductReturnsFreshStock(t *testing.T) {
	db := setupCatalogDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	row := models.Product{
		ID:           uuid.New(),
		Name:         "Linen Shirt",
		Slug:         "linen-shirt",
		Image:        "/images/shirt.jpg",
		Price:        decimal.RequireFromString("39.90"),
		CountInStock: 4,
	}
	require.NoError(t, db.Create(&row).Error)

	got, err := repo.GetProduct(ctx, row.ID)
	require.NoError(t, err)
	require.Equal(t, "linen-shirt", got.Slug)
	require.Equal(t, 4, got.CountInStock)
	require.True(t, got.Price.Equal(decimal.RequireFromString("39.9")))

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", row.ID).Update("count_in_stock", 0).Error)
	got, err = repo.GetProduct(ctx, row.ID)
	require.NoError(t, err)
	require.Zero(t, got.CountInStock)
}

func TestGetProductNotFound(t *testing.T) {
	repo := NewRepository(setupCatalogDB(t))

	_, err := repo.GetProduct(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetProductRequiresID(t *testing.T) {
	repo := NewRepository(setupCatalogDB(t))

	_, err := repo.GetProduct(context.Background(), uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
