package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	// OrderIDMetadataKey ties an intent back to the order it charges.
	OrderIDMetadataKey = "order_id"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

type paymentIntents interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
}

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	intents        paymentIntents
	environment    string
	publishableKey string
	logger         *logger.Logger
}

// ChargeParams describes a confirmed PaymentIntent for a single order.
type ChargeParams struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	OrderID         string
	IdempotencyKey  string
}

// NewClient initializes Stripe once with the configured key and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		intents:        api.V1PaymentIntents,
		environment:    env,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		logger:         logg,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// PublishableKey is handed to browsers so they can tokenize a payment method.
func (c *Client) PublishableKey() string {
	if c == nil {
		return ""
	}
	return c.publishableKey
}

// Charge creates and confirms a PaymentIntent. The returned intent may still
// be in a non-succeeded state; callers inspect Status.
func (c *Client) Charge(ctx context.Context, params ChargeParams) (*stripe.PaymentIntent, error) {
	if c == nil || c.intents == nil {
		return nil, errAPIKeyRequired
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	if strings.TrimSpace(params.PaymentMethodID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	req := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(params.AmountCents),
		Currency:           stripe.String(strings.ToLower(params.Currency)),
		PaymentMethod:      stripe.String(params.PaymentMethodID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	if params.OrderID != "" {
		req.AddMetadata(OrderIDMetadataKey, params.OrderID)
	}
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}

	intent, err := c.intents.Create(ctx, req)
	if err != nil {
		if c.logger != nil {
			c.logger.Error(c.logger.WithOrderID(ctx, params.OrderID), "stripe charge failed", err)
		}
		return nil, mapStripeError(err)
	}
	if c.logger != nil {
		ctx = c.logger.WithFields(ctx, map[string]any{
			"order_id":          params.OrderID,
			"payment_intent_id": intent.ID,
			"status":            string(intent.Status),
		})
		c.logger.Info(ctx, "stripe charge response")
	}
	return intent, nil
}

// GetPaymentIntent reads an intent by id.
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if c == nil || c.intents == nil {
		return nil, errAPIKeyRequired
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	intent, err := c.intents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, mapStripeError(err)
	}
	return intent, nil
}

// Succeeded reports whether an intent has captured funds.
func Succeeded(intent *stripe.PaymentIntent) bool {
	return intent != nil && intent.Status == stripe.PaymentIntentStatusSucceeded
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe charge failed")
	}
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return pkgerrors.Wrap(pkgerrors.CodePaymentCaptureFailed, err, "card declined").
			WithDetails(map[string]any{"decline_code": string(stripeErr.DeclineCode)})
	case stripeErr.Type == stripe.ErrorTypeIdempotency:
		return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "stripe idempotency conflict")
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe rejected credentials")
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, "stripe rate limited")
	case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe rejected request")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe charge failed")
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
