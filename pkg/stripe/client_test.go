package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubIntents struct {
	got       *stripe.PaymentIntentCreateParams
	retrieved string
	intent    *stripe.PaymentIntent
	err       error
}

func (s *stubIntents) Retrieve(_ context.Context, id string, _ *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error) {
	s.retrieved = id
	return s.intent, s.err
}

func (s *stubIntents) Create(_ context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	s.got = params
	return s.intent, s.err
}

func TestNewClientValidatesKeyForEnvironment(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_live_x", Env: "test"}, nil)
	require.Error(t, err)

	_, err = NewClient(context.Background(), config.StripeConfig{Env: "test"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_x", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_x", PublishableKey: "pk_test_x"}, nil)
	require.NoError(t, err)
	require.Equal(t, "test", client.Environment())
	require.Equal(t, "pk_test_x", client.PublishableKey())
}

func TestChargeBuildsConfirmedIntent(t *testing.T) {
	stub := &stubIntents{intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}}
	client := &Client{intents: stub}

	intent, err := client.Charge(context.Background(), ChargeParams{
		AmountCents:     1999,
		Currency:        "USD",
		PaymentMethodID: "pm_card_visa",
		OrderID:         "order-1",
		IdempotencyKey:  "order-order-1",
	})
	require.NoError(t, err)
	require.True(t, Succeeded(intent))
	require.Equal(t, int64(1999), *stub.got.Amount)
	require.Equal(t, "usd", *stub.got.Currency)
	require.True(t, *stub.got.Confirm)
	require.Equal(t, "order-1", stub.got.Metadata["order_id"])
	require.Equal(t, "order-order-1", *stub.got.IdempotencyKey)
}

func TestChargeRejectsInvalidInput(t *testing.T) {
	client := &Client{intents: &stubIntents{}}

	_, err := client.Charge(context.Background(), ChargeParams{AmountCents: 0, PaymentMethodID: "pm"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = client.Charge(context.Background(), ChargeParams{AmountCents: 10})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMapStripeError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{"card", &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired}, pkgerrors.CodePaymentCaptureFailed},
		{"idempotency", &stripe.Error{Type: stripe.ErrorTypeIdempotency, HTTPStatusCode: http.StatusBadRequest}, pkgerrors.CodeIdempotency},
		{"auth", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusUnauthorized}, pkgerrors.CodeUnauthorized},
		{"rate", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusTooManyRequests}, pkgerrors.CodeRateLimit},
		{"server", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusBadGateway}, pkgerrors.CodeDependency},
		{"transport", errors.New("dial tcp: timeout"), pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, pkgerrors.IsCode(mapStripeError(tc.err), tc.want))
		})
	}
}

func TestGetPaymentIntent(t *testing.T) {
	stub := &stubIntents{intent: &stripe.PaymentIntent{ID: "pi_9", Metadata: map[string]string{OrderIDMetadataKey: "o-1"}}}
	client := &Client{intents: stub}

	intent, err := client.GetPaymentIntent(context.Background(), " pi_9 ")
	require.NoError(t, err)
	require.Equal(t, "pi_9", stub.retrieved)
	require.Equal(t, "o-1", intent.Metadata[OrderIDMetadataKey])

	_, err = client.GetPaymentIntent(context.Background(), "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	stub.err = &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusNotFound}
	_, err = client.GetPaymentIntent(context.Background(), "pi_missing")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
