package controllers

import (
	"context"
	"fmt"
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
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubPlacer struct {
	input internalorders.CheckoutInput
	err   error
}

func (s *stubPlacer) Checkout(_ context.Context, input internalorders.CheckoutInput) (*models.Order, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	items := input.Session.Cart().Items()
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          input.Actor.UserID,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		ItemsPrice:      input.Session.Cart().TotalPrice(),
		TotalPrice:      input.Session.Cart().TotalPrice(),
		Version:         1,
		CreatedAt:       time.Now(),
	}
	for _, item := range items {
		order.Items = append(order.Items, models.OrderItem{ProductID: item.ProductID, Name: item.Name, UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}
	return order, nil
}

const checkoutBody = `{
	"shippingAddress": {"fullName":"Ada Lovelace","address":"1 Analytical Way","city":"London","province":"LDN","postalCode":"N1"},
	"paymentMethod": "%s"
}`

func TestCheckoutPlacesOrderFromSessionCart(t *testing.T) {
	lamp := product("40", 3)
	carts := newCartManager(t, lamp)
	user := uuid.New()
	opts := requestOpts{user: user, session: "user-" + user.String()}
	serve(t, CartAddItem(carts, nil), newRequest(http.MethodPost, "/", fmt.Sprintf(`{"productId":%q}`, lamp.ID), opts))

	placer := &stubPlacer{}
	resp, env := serve(t, Checkout(placer, carts, nil), newRequest(http.MethodPost, "/api/v1/checkout", fmt.Sprintf(checkoutBody, "PayPal"), opts))

	require.Equal(t, http.StatusCreated, resp.Code)
	order := decodeData[orderResponse](t, env)
	assert.Equal(t, user, order.UserID)
	assert.Equal(t, enums.PaymentMethodPayPal, order.PaymentMethod)
	require.Len(t, order.OrderItems, 1)
	assert.True(t, decimal.RequireFromString("40").Equal(order.TotalPrice))

	assert.Equal(t, user, placer.input.Actor.UserID)
	assert.Equal(t, types.ShippingAddress{FullName: "Ada Lovelace", Address: "1 Analytical Way", City: "London", Province: "LDN", PostalCode: "N1"}, placer.input.ShippingAddress)
}

func TestCheckoutRejectsUnknownPaymentMethod(t *testing.T) {
	user := uuid.New()
	placer := &stubPlacer{}
	resp, env := serve(t, Checkout(placer, newCartManager(t), nil), newRequest(http.MethodPost, "/", fmt.Sprintf(checkoutBody, "bitcoin"), requestOpts{user: user, session: "user-x"}))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
	assert.Nil(t, placer.input.Session, "service must not run")
}

func TestCheckoutRequiresUser(t *testing.T) {
	resp, env := serve(t, Checkout(&stubPlacer{}, newCartManager(t), nil), newRequest(http.MethodPost, "/", fmt.Sprintf(checkoutBody, "cash"), requestOpts{session: "guest-abcdefgh"}))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeUnauthorized), env.Error.Code)
}

func TestCheckoutSurfacesServiceErrors(t *testing.T) {
	placer := &stubPlacer{err: pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")}
	resp, env := serve(t, Checkout(placer, newCartManager(t), nil), newRequest(http.MethodPost, "/", fmt.Sprintf(checkoutBody, "cash"), requestOpts{user: uuid.New(), session: "user-y"}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "cart is empty", env.Error.Message)
}
