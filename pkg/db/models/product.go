package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the read model of a catalog listing. Catalog management lives elsewhere.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null"`
	Slug         string          `gorm:"column:slug;not null;uniqueIndex"`
	Image        string          `gorm:"column:image;not null;default:''"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	CountInStock int             `gorm:"column:count_in_stock;not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
