package orders

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrStaleVersion is returned by Update when the expected version no longer matches.
var ErrStaleVersion = errors.New("order version is stale")

// AdminFilters narrows the admin order listing.
type AdminFilters struct {
	IsPaid      *bool
	IsDelivered *bool
}

// MonthlySales is one row of the sales-by-month breakdown. Month is YYYY-MM.
type MonthlySales struct {
	Month  string          `json:"month"`
	Orders int64           `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

// SalesSummary backs the admin dashboard.
type SalesSummary struct {
	OrdersCount     int64           `json:"ordersCount"`
	PaidOrdersCount int64           `json:"paidOrdersCount"`
	TotalSales      decimal.Decimal `json:"totalSales"`
	ProductsCount   int64           `json:"productsCount"`
	SalesByMonth    []MonthlySales  `json:"salesByMonth"`
}

// Repository defines persistence operations for orders and their payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch, expectedVersion int) error
	CreatePaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	FindSucceededAttempt(ctx context.Context, reference string) (*models.PaymentAttempt, error)
	ListPaymentAttempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	ListAll(ctx context.Context, params pagination.Params, filters AdminFilters) (pagination.Page[models.Order], error)
	Summary(ctx context.Context) (*SalesSummary, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order and its frozen items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Update applies patch only if the row still carries expectedVersion, bumping the version.
// A missing row yields gorm.ErrRecordNotFound; a version mismatch yields ErrStaleVersion.
func (r *repository) Update(ctx context.Context, id uuid.UUID, patch Patch, expectedVersion int) error {
	if patch.IsEmpty() {
		return nil
	}

	values := models.Order{Version: expectedVersion + 1, UpdatedAt: time.Now().UTC()}
	columns := []string{"version", "updated_at"}
	if patch.IsPaid != nil {
		values.IsPaid = *patch.IsPaid
		columns = append(columns, "is_paid")
	}
	if patch.PaidAt != nil {
		values.PaidAt = patch.PaidAt
		columns = append(columns, "paid_at")
	}
	if patch.PaymentResult != nil {
		values.PaymentResult = patch.PaymentResult
		columns = append(columns, "payment_result")
	}
	if patch.IsDelivered != nil {
		values.IsDelivered = *patch.IsDelivered
		columns = append(columns, "is_delivered")
	}
	if patch.DeliveredAt != nil {
		values.DeliveredAt = patch.DeliveredAt
		columns = append(columns, "delivered_at")
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Select(columns).
		Updates(&values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrStaleVersion
}

func (r *repository) CreatePaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// FindSucceededAttempt returns the succeeded attempt recorded under a processor reference.
func (r *repository) FindSucceededAttempt(ctx context.Context, reference string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("reference = ? AND status = ?", reference, enums.PaymentAttemptSucceeded).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) ListPaymentAttempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	return r.listPage(query, params)
}

func (r *repository) ListAll(ctx context.Context, params pagination.Params, filters AdminFilters) (pagination.Page[models.Order], error) {
	query := r.db.WithContext(ctx)
	if filters.IsPaid != nil {
		query = query.Where("is_paid = ?", *filters.IsPaid)
	}
	if filters.IsDelivered != nil {
		query = query.Where("is_delivered = ?", *filters.IsDelivered)
	}
	return r.listPage(query, params)
}

func (r *repository) listPage(query *gorm.DB, params pagination.Params) (pagination.Page[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (r *repository) Summary(ctx context.Context) (*SalesSummary, error) {
	db := r.db.WithContext(ctx)
	summary := &SalesSummary{TotalSales: decimal.Zero, SalesByMonth: []MonthlySales{}}

	if err := db.Model(&models.Order{}).Count(&summary.OrdersCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Product{}).Count(&summary.ProductsCount).Error; err != nil {
		return nil, err
	}

	var paid struct {
		Orders int64
		Total  decimal.NullDecimal
	}
	err := db.Model(&models.Order{}).
		Select("COUNT(*) AS orders, SUM(total_price) AS total").
		Where("is_paid = ?", true).
		Scan(&paid).Error
	if err != nil {
		return nil, err
	}
	summary.PaidOrdersCount = paid.Orders
	if paid.Total.Valid {
		summary.TotalSales = paid.Total.Decimal
	}

	month := monthExpr(r.db)
	var rows []MonthlySales
	err = db.Model(&models.Order{}).
		Select(month+" AS month, COUNT(*) AS orders, SUM(total_price) AS total").
		Where("is_paid = ?", true).
		Group(month).
		Order("month ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if rows != nil {
		summary.SalesByMonth = rows
	}
	return summary, nil
}

func monthExpr(db *gorm.DB) string {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return "strftime('%Y-%m', created_at)"
	}
	return "to_char(created_at, 'YYYY-MM')"
}
