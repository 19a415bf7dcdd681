package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type orderItemResponse struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type orderResponse struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"userId"`
	OrderItems      []orderItemResponse   `json:"orderItems"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod"`
	Status          internalorders.Status `json:"status"`
	ItemsPrice      decimal.Decimal       `json:"itemsPrice"`
	TaxPrice        decimal.Decimal       `json:"taxPrice"`
	ShippingPrice   decimal.Decimal       `json:"shippingPrice"`
	TotalPrice      decimal.Decimal       `json:"totalPrice"`
	IsPaid          bool                  `json:"isPaid"`
	PaidAt          *time.Time            `json:"paidAt,omitempty"`
	PaymentResult   *types.PaymentResult  `json:"paymentResult,omitempty"`
	IsDelivered     bool                  `json:"isDelivered"`
	DeliveredAt     *time.Time            `json:"deliveredAt,omitempty"`
	Version         int                   `json:"version"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

type paymentAttemptResponse struct {
	ID           uuid.UUID                  `json:"id"`
	Processor    string                     `json:"processor"`
	Amount       decimal.Decimal            `json:"amount"`
	Status       enums.PaymentAttemptStatus `json:"status"`
	Reference    *string                    `json:"reference,omitempty"`
	ErrorMessage *string                    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time                  `json:"createdAt"`
}

type orderDetailResponse struct {
	orderResponse
	PaymentAttempts []paymentAttemptResponse `json:"paymentAttempts"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Slug:      item.Slug,
			Image:     item.Image,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	// raw processor payloads stay server-side
	var result *types.PaymentResult
	if order.PaymentResult != nil {
		public := *order.PaymentResult
		public.Raw = nil
		result = &public
	}
	return orderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		OrderItems:      items,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		Status:          internalorders.StatusOf(order),
		ItemsPrice:      order.ItemsPrice,
		TaxPrice:        order.TaxPrice,
		ShippingPrice:   order.ShippingPrice,
		TotalPrice:      order.TotalPrice,
		IsPaid:          order.IsPaid,
		PaidAt:          order.PaidAt,
		PaymentResult:   result,
		IsDelivered:     order.IsDelivered,
		DeliveredAt:     order.DeliveredAt,
		Version:         order.Version,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func newOrderDetailResponse(order *models.Order, attempts []models.PaymentAttempt) orderDetailResponse {
	out := orderDetailResponse{
		orderResponse:   newOrderResponse(order),
		PaymentAttempts: make([]paymentAttemptResponse, 0, len(attempts)),
	}
	for _, attempt := range attempts {
		out.PaymentAttempts = append(out.PaymentAttempts, paymentAttemptResponse{
			ID:           attempt.ID,
			Processor:    attempt.Processor,
			Amount:       attempt.Amount,
			Status:       attempt.Status,
			Reference:    attempt.Reference,
			ErrorMessage: attempt.ErrorMessage,
			CreatedAt:    attempt.CreatedAt,
		})
	}
	return out
}

func newOrderPage(page pagination.Page[models.Order]) pagination.Page[orderResponse] {
	items := make([]orderResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, newOrderResponse(&page.Items[i]))
	}
	return pagination.Page[orderResponse]{Items: items, NextCursor: page.NextCursor}
}
