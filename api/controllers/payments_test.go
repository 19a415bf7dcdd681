package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubPayments struct {
	order     *models.Order
	err       error
	sourceID  string
	confirmed payments.CaptureResult
	cashBy    internalorders.Actor
}

func (s *stubPayments) GetClientConfig(_ context.Context, orderID uuid.UUID, _ internalorders.Actor) (*payments.ClientConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payments.ClientConfig{Method: enums.PaymentMethodPayPal, ClientID: "sb", Currency: "USD", Amount: decimal.RequireFromString("21.50"), AmountCents: 2150}, nil
}

func (s *stubPayments) Capture(_ context.Context, _ uuid.UUID, sourceID string, _ internalorders.Actor) (*models.Order, error) {
	s.sourceID = sourceID
	return s.paid("sq_ref")
}

func (s *stubPayments) ConfirmPayment(_ context.Context, _ uuid.UUID, result payments.CaptureResult, _ internalorders.Actor) (*models.Order, error) {
	s.confirmed = result
	if !result.OK {
		return nil, pkgerrors.New(pkgerrors.CodePaymentCaptureFailed, "declined: "+result.Status)
	}
	return s.paid(result.Reference)
}

func (s *stubPayments) CollectCash(_ context.Context, _ uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	s.cashBy = actor
	return s.paid("cash-1")
}

func (s *stubPayments) paid(ref string) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.order.IsPaid = true
	s.order.PaymentResult = &types.PaymentResult{Reference: ref, Status: "COMPLETED"}
	return s.order, nil
}

func orderParams(order *models.Order) map[string]string {
	return map[string]string{"orderId": order.ID.String()}
}

func TestPaymentConfig(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	resp, env := serve(t, PaymentConfig(&stubPayments{order: order}, nil), newRequest(http.MethodGet, "/", "", requestOpts{user: owner, params: orderParams(order)}))

	require.Equal(t, http.StatusOK, resp.Code)
	cfg := decodeData[payments.ClientConfig](t, env)
	assert.Equal(t, "sb", cfg.ClientID)
	assert.Equal(t, int64(2150), cfg.AmountCents)
}

func TestPaymentConfigAlreadyPaid(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	svc := &stubPayments{order: order, err: pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")}
	resp, env := serve(t, PaymentConfig(svc, nil), newRequest(http.MethodGet, "/", "", requestOpts{user: owner, params: orderParams(order)}))

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeAlreadyPaid), env.Error.Code)
}

func TestCapturePayment(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	svc := &stubPayments{order: order}

	resp, env := serve(t, CapturePayment(svc, nil), newRequest(http.MethodPost, "/", `{"sourceId":"cnon:card-nonce-ok"}`, requestOpts{user: owner, params: orderParams(order)}))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decodeData[orderResponse](t, env).IsPaid)
	assert.Equal(t, "cnon:card-nonce-ok", svc.sourceID)

	resp, _ = serve(t, CapturePayment(svc, nil), newRequest(http.MethodPost, "/", `{}`, requestOpts{user: owner, params: orderParams(order)}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCapturePaymentMapsDecline(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	svc := &stubPayments{order: order, err: pkgerrors.New(pkgerrors.CodePaymentCaptureFailed, "declined: card_declined")}

	resp, env := serve(t, CapturePayment(svc, nil), newRequest(http.MethodPost, "/", `{"sourceId":"tok"}`, requestOpts{user: owner, params: orderParams(order)}))
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)
	assert.Equal(t, "declined: card_declined", env.Error.Message)
}

func TestConfirmPaymentAcceptsProcessorPayload(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	svc := &stubPayments{order: order}
	body := `{"id":"5O190127TN364715T","status":"COMPLETED","intent":"CAPTURE","payer":{"email_address":"buyer@example.com"},"purchase_units":[]}`

	resp, env := serve(t, ConfirmPayment(svc, nil), newRequest(http.MethodPut, "/", body, requestOpts{user: owner, params: orderParams(order)}))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decodeData[orderResponse](t, env).IsPaid)
	assert.True(t, svc.confirmed.OK)
	assert.Equal(t, "5O190127TN364715T", svc.confirmed.Reference)
	assert.Equal(t, "buyer@example.com", svc.confirmed.Email)
	assert.JSONEq(t, body, string(svc.confirmed.Detail))
}

func TestConfirmPaymentReadsPurchaseUnitAmount(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	svc := &stubPayments{order: order}
	body := `{"id":"PP-1","status":"COMPLETED","purchase_units":[{"reference_id":"default","amount":{"currency_code":"USD","value":"253.00"}}]}`

	resp, _ := serve(t, ConfirmPayment(svc, nil), newRequest(http.MethodPut, "/", body, requestOpts{user: owner, params: orderParams(order)}))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(25300), svc.confirmed.AmountCents)

	body = `{"id":"PP-2","status":"COMPLETED","amountCents":1999,"purchase_units":[{"amount":{"value":"253.00"}}]}`
	resp, _ = serve(t, ConfirmPayment(svc, nil), newRequest(http.MethodPut, "/", body, requestOpts{user: owner, params: orderParams(order)}))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(1999), svc.confirmed.AmountCents)
}

func TestConfirmPaymentNonCompletedStatusIsNotOK(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner)
	svc := &stubPayments{order: order}

	resp, _ := serve(t, ConfirmPayment(svc, nil), newRequest(http.MethodPut, "/", `{"id":"X","status":"VOIDED"}`, requestOpts{user: owner, params: orderParams(order)}))
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)
	assert.False(t, svc.confirmed.OK)

	resp, _ = serve(t, ConfirmPayment(svc, nil), newRequest(http.MethodPut, "/", `{"status":"COMPLETED"}`, requestOpts{user: owner, params: orderParams(order)}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
