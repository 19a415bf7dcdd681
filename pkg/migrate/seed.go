package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// SeedProduct is one catalog row in a seed file.
type SeedProduct struct {
	Name         string          `json:"name" validate:"required"`
	Slug         string          `json:"slug" validate:"required"`
	Image        string          `json:"image"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock" validate:"gte=0"`
}

var seedValidator = validator.New()

// SeedProducts upserts the products listed in r, keyed by slug. Prices and stock of
// existing rows are overwritten. It returns the number of rows written.
func SeedProducts(ctx context.Context, db *gorm.DB, r io.Reader) (int, error) {
	var items []SeedProduct
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	rows := make([]models.Product, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		item.Slug = strings.ToLower(strings.TrimSpace(item.Slug))
		if err := seedValidator.Struct(item); err != nil {
			return 0, fmt.Errorf("product %d: %w", i, err)
		}
		if item.Price.IsNegative() {
			return 0, fmt.Errorf("product %d: price must not be negative", i)
		}
		if _, dup := seen[item.Slug]; dup {
			return 0, fmt.Errorf("product %d: duplicate slug %q", i, item.Slug)
		}
		seen[item.Slug] = struct{}{}
		rows = append(rows, models.Product{
			ID:           uuid.New(),
			Name:         item.Name,
			Slug:         item.Slug,
			Image:        item.Image,
			Price:        item.Price.Round(2),
			CountInStock: item.CountInStock,
		})
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "image", "price", "count_in_stock", "updated_at"}),
			}).Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("upsert %s: %w", rows[i].Slug, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
