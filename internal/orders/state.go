package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Status is derived from the isPaid/isDelivered flags; it is never stored.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPaid      Status = "paid"
	StatusDelivered Status = "delivered"
)

func StatusOf(order *models.Order) Status {
	switch {
	case order.IsDelivered:
		return StatusDelivered
	case order.IsPaid:
		return StatusPaid
	default:
		return StatusCreated
	}
}

// Patch is the set of column changes a transition produces.
type Patch struct {
	IsPaid        *bool
	PaidAt        *time.Time
	PaymentResult *types.PaymentResult
	IsDelivered   *bool
	DeliveredAt   *time.Time
}

func (p Patch) IsEmpty() bool {
	return p.IsPaid == nil && p.PaidAt == nil && p.PaymentResult == nil && p.IsDelivered == nil && p.DeliveredAt == nil
}

// Apply copies the patch onto an in-memory order.
func (p Patch) Apply(order *models.Order) {
	if p.IsPaid != nil {
		order.IsPaid = *p.IsPaid
	}
	if p.PaidAt != nil {
		order.PaidAt = p.PaidAt
	}
	if p.PaymentResult != nil {
		order.PaymentResult = p.PaymentResult
	}
	if p.IsDelivered != nil {
		order.IsDelivered = *p.IsDelivered
	}
	if p.DeliveredAt != nil {
		order.DeliveredAt = p.DeliveredAt
	}
}

// MarkPaid moves a created order to paid. A second call fails with ALREADY_PAID and
// leaves paidAt untouched.
func MarkPaid(order *models.Order, result types.PaymentResult, now time.Time) (Patch, error) {
	if order == nil {
		return Patch{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.IsPaid {
		return Patch{}, alreadyPaid(order)
	}
	paid := true
	at := now.UTC()
	return Patch{IsPaid: &paid, PaidAt: &at, PaymentResult: &result}, nil
}

// PayFail validates that a failed capture may be recorded. The order itself is unchanged.
func PayFail(order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.IsPaid {
		return alreadyPaid(order)
	}
	return nil
}

// MarkDelivered moves a paid order to delivered.
func MarkDelivered(order *models.Order, now time.Time) (Patch, error) {
	if order == nil {
		return Patch{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !order.IsPaid {
		return Patch{}, pkgerrors.New(pkgerrors.CodeNotPaid, "order is not paid")
	}
	if order.IsDelivered {
		return Patch{}, pkgerrors.New(pkgerrors.CodeAlreadyDelivered, "order already delivered")
	}
	delivered := true
	at := now.UTC()
	return Patch{IsDelivered: &delivered, DeliveredAt: &at}, nil
}

// ValidateCreate checks the checkout preconditions and reports every problem at once.
func ValidateCreate(itemCount int, address types.ShippingAddress, method enums.PaymentMethod) error {
	details := map[string]any{}
	if itemCount == 0 {
		details["cart"] = "cart is empty"
	}
	if missing := address.MissingFields(); len(missing) > 0 {
		details["shippingAddress"] = missing
	}
	if !method.IsValid() {
		details["paymentMethod"] = "unsupported payment method"
	}
	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "checkout is incomplete").WithDetails(details)
}

func alreadyPaid(order *models.Order) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order already paid").WithDetails(map[string]any{
		"orderId": order.ID,
	})
}
