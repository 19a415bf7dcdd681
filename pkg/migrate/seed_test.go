package migrate

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

func TestSeedProductsUpsertsBySlug(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()

	first := `[
		{"name":"Airpods","slug":"airpods","image":"/images/airpods.jpg","price":"89.99","countInStock":10},
		{"name":"Camera","slug":"Camera ","price":"929.99","countInStock":0}
	]`
	n, err := SeedProducts(ctx, conn, strings.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	second := `[{"name":"AirPods Pro","slug":"airpods","price":"99.5","countInStock":3}]`
	n, err = SeedProducts(ctx, conn, strings.NewReader(second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var rows []models.Product
	require.NoError(t, conn.Order("slug").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "AirPods Pro", rows[0].Name)
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, 3, rows[0].CountInStock)
	assert.Equal(t, "camera", rows[1].Slug)
}

func TestSeedProductsRejectsBadRows(t *testing.T) {
	conn := dbtest.Open(t)

	cases := map[string]string{
		"missing name":   `[{"slug":"x","price":"1"}]`,
		"negative price": `[{"name":"x","slug":"x","price":"-1"}]`,
		"negative stock": `[{"name":"x","slug":"x","price":"1","countInStock":-2}]`,
		"duplicate slug": `[{"name":"a","slug":"x","price":"1"},{"name":"b","slug":"X","price":"2"}]`,
		"not json":       `{`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := SeedProducts(context.Background(), conn, strings.NewReader(payload))
			require.Error(t, err)
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}
