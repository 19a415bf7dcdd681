package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubOrders struct {
	orders      map[uuid.UUID]*models.Order
	attempts    []models.PaymentAttempt
	lastParams  pagination.Params
	lastFilters internalorders.AdminFilters
	summary     *internalorders.SalesSummary
	deliverErr  error
}

func newStubOrders(orders ...*models.Order) *stubOrders {
	s := &stubOrders{orders: map[uuid.UUID]*models.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok || (o.UserID != actor.UserID && !actor.IsAdmin()) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return o, nil
}

func (s *stubOrders) PaymentAttempts(_ context.Context, _ uuid.UUID, _ internalorders.Actor) ([]models.PaymentAttempt, error) {
	return s.attempts, nil
}

func (s *stubOrders) History(_ context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	s.lastParams = params
	var page pagination.Page[models.Order]
	for _, o := range s.orders {
		if o.UserID == userID {
			page.Items = append(page.Items, *o)
		}
	}
	return page, nil
}

func (s *stubOrders) Deliver(_ context.Context, id uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	if s.deliverErr != nil {
		return nil, s.deliverErr
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin required")
	}
	o := s.orders[id]
	now := time.Now()
	o.IsDelivered, o.DeliveredAt = true, &now
	return o, nil
}

func (s *stubOrders) AdminList(_ context.Context, params pagination.Params, filters internalorders.AdminFilters) (pagination.Page[models.Order], error) {
	s.lastParams, s.lastFilters = params, filters
	return pagination.Page[models.Order]{Items: []models.Order{}, NextCursor: "next"}, nil
}

func (s *stubOrders) Summary(_ context.Context) (*internalorders.SalesSummary, error) {
	return s.summary, nil
}

func sampleOrder(owner uuid.UUID) *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		UserID:          owner,
		PaymentMethod:   enums.PaymentMethodSquare,
		ShippingAddress: types.ShippingAddress{FullName: "A", Address: "B", City: "C", Province: "D", PostalCode: "E"},
		ItemsPrice:      decimal.RequireFromString("10"),
		TaxPrice:        decimal.RequireFromString("1.5"),
		ShippingPrice:   decimal.RequireFromString("10"),
		TotalPrice:      decimal.RequireFromString("21.5"),
		Version:         1,
		Items:           []models.OrderItem{{ProductID: uuid.New(), Name: "Widget", UnitPrice: decimal.RequireFromString("10"), Quantity: 1}},
	}
}

func TestOrderDetailIncludesAttemptsAndHidesRawPayload(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	paidAt := time.Now()
	order.IsPaid, order.PaidAt = true, &paidAt
	order.PaymentResult = &types.PaymentResult{Reference: "sq_1", Status: "COMPLETED", Raw: []byte(`{"card":"secret"}`)}
	ref := "sq_1"
	svc := newStubOrders(order)
	svc.attempts = []models.PaymentAttempt{{ID: uuid.New(), Processor: "square", Status: enums.PaymentAttemptSucceeded, Reference: &ref}}

	req := newRequest(http.MethodGet, "/", "", requestOpts{user: owner, params: map[string]string{"orderId": order.ID.String()}})
	resp, env := serve(t, OrderDetail(svc, nil), req)

	require.Equal(t, http.StatusOK, resp.Code)
	detail := decodeData[orderDetailResponse](t, env)
	assert.Equal(t, order.ID, detail.ID)
	assert.Equal(t, internalorders.StatusPaid, detail.Status)
	require.Len(t, detail.PaymentAttempts, 1)
	assert.Equal(t, "square", detail.PaymentAttempts[0].Processor)
	require.NotNil(t, detail.PaymentResult)
	assert.Empty(t, detail.PaymentResult.Raw)
	assert.NotContains(t, resp.Body.String(), "secret")
}

func TestOrderDetailForStrangerIsNotFound(t *testing.T) {
	order := sampleOrder(uuid.New())
	req := newRequest(http.MethodGet, "/", "", requestOpts{user: uuid.New(), params: map[string]string{"orderId": order.ID.String()}})
	resp, _ := serve(t, OrderDetail(newStubOrders(order), nil), req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestOrderDetailRejectsMalformedID(t *testing.T) {
	req := newRequest(http.MethodGet, "/", "", requestOpts{user: uuid.New(), params: map[string]string{"orderId": "42"}})
	resp, _ := serve(t, OrderDetail(newStubOrders(), nil), req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestOrderHistoryPassesPaging(t *testing.T) {
	owner := uuid.New()
	svc := newStubOrders(sampleOrder(owner), sampleOrder(uuid.New()))

	resp, env := serve(t, OrderHistory(svc, nil), newRequest(http.MethodGet, "/api/v1/orders/history?limit=5", "", requestOpts{user: owner}))
	require.Equal(t, http.StatusOK, resp.Code)
	page := decodeData[pagination.Page[orderResponse]](t, env)
	require.Len(t, page.Items, 1)
	assert.Equal(t, owner, page.Items[0].UserID)
	assert.Equal(t, 5, svc.lastParams.Limit)

	resp, _ = serve(t, OrderHistory(svc, nil), newRequest(http.MethodGet, "/?cursor=not-a-cursor", "", requestOpts{user: owner}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, _ = serve(t, OrderHistory(svc, nil), newRequest(http.MethodGet, "/?limit=1000", "", requestOpts{user: owner}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
