package catalog

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the fresh catalog view used for stock checks at add time.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Image        string          `json:"image"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock"`
}

// Reader is the read-only catalog surface the cart depends on.
type Reader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}

// Repository reads products straight from the catalog table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetProduct returns the current price and stock. Missing products map to NOT_FOUND.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var row models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return fromModel(row), nil
}

func fromModel(m models.Product) *Product {
	return &Product{
		ID:           m.ID,
		Name:         m.Name,
		Slug:         m.Slug,
		Image:        m.Image,
		Price:        m.Price,
		CountInStock: m.CountInStock,
	}
}
