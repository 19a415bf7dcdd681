package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the placed order with its frozen pricing snapshot.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	ShippingAddress types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	PaymentMethod   enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null"`
	ItemsPrice      decimal.Decimal       `gorm:"column:items_price;type:numeric(12,2);not null"`
	TaxPrice        decimal.Decimal       `gorm:"column:tax_price;type:numeric(12,2);not null"`
	ShippingPrice   decimal.Decimal       `gorm:"column:shipping_price;type:numeric(12,2);not null"`
	TotalPrice      decimal.Decimal       `gorm:"column:total_price;type:numeric(12,2);not null"`
	IsPaid          bool                  `gorm:"column:is_paid;not null;default:false"`
	PaidAt          *time.Time            `gorm:"column:paid_at"`
	PaymentResult   *types.PaymentResult  `gorm:"column:payment_result;type:jsonb;serializer:json"`
	IsDelivered     bool                  `gorm:"column:is_delivered;not null;default:false"`
	DeliveredAt     *time.Time            `gorm:"column:delivered_at"`
	Version         int                   `gorm:"column:version;not null;default:1"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
