package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once an order and its frozen items are stored.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ItemCount     int                 `json:"item_count"`
	ItemsPrice    decimal.Decimal     `json:"items_price"`
	TaxPrice      decimal.Decimal     `json:"tax_price"`
	ShippingPrice decimal.Decimal     `json:"shipping_price"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
}

// OrderPaidEvent is emitted when payment is reconciled onto the order.
type OrderPaidEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Reference     string              `json:"reference"`
	Amount        decimal.Decimal     `json:"amount"`
	PaidAt        time.Time           `json:"paid_at"`
}

// PaymentFailedEvent records a declined or failed capture. The order stays unpaid.
type PaymentFailedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Amount        decimal.Decimal     `json:"amount"`
	Reason        string              `json:"reason"`
}

// OrderDeliveredEvent is emitted when an admin marks the order delivered.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}
