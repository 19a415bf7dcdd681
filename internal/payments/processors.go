package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"
	stripego "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/square"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

type squareAPI interface {
	ApplicationID() string
	LocationID() string
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareProcessor charges card nonces through the Square payments API.
type SquareProcessor struct {
	api squareAPI
}

func NewSquareProcessor(api squareAPI) (*SquareProcessor, error) {
	if api == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareProcessor{api: api}, nil
}

func (p *SquareProcessor) Name() string { return "square" }

func (p *SquareProcessor) ClientConfig() ProcessorConfig {
	return ProcessorConfig{ClientID: p.api.ApplicationID(), LocationID: p.api.LocationID()}
}

func (p *SquareProcessor) AuthorizeAndCapture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	payment, err := p.api.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.OrderID.String(),
		Note:           "storefront order " + req.OrderID.String(),
	})
	if err != nil {
		return CaptureResult{}, err
	}
	return squareResult(payment), nil
}

func (p *SquareProcessor) Lookup(ctx context.Context, reference string) (CaptureResult, error) {
	payment, err := p.api.GetPayment(ctx, reference)
	if err != nil {
		return CaptureResult{}, err
	}
	return squareResult(payment), nil
}

func squareResult(payment *sq.Payment) CaptureResult {
	if payment == nil {
		return CaptureResult{}
	}
	raw, _ := json.Marshal(payment)
	result := CaptureResult{
		OK:             square.PaymentCompleted(payment),
		Reference:      deref(payment.ID),
		OrderReference: deref(payment.ReferenceID),
		Status:         deref(payment.Status),
		Email:          deref(payment.BuyerEmailAddress),
		Detail:         raw,
	}
	if payment.AmountMoney != nil && payment.AmountMoney.Amount != nil {
		result.AmountCents = *payment.AmountMoney.Amount
	}
	return result
}

type stripeAPI interface {
	PublishableKey() string
	Charge(ctx context.Context, params stripe.ChargeParams) (*stripego.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripego.PaymentIntent, error)
}

// StripeProcessor confirms PaymentIntents for payment methods tokenized by Stripe Elements.
type StripeProcessor struct {
	api stripeAPI
}

func NewStripeProcessor(api stripeAPI) (*StripeProcessor, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeProcessor{api: api}, nil
}

func (p *StripeProcessor) Name() string { return "stripe" }

func (p *StripeProcessor) ClientConfig() ProcessorConfig {
	return ProcessorConfig{ClientID: p.api.PublishableKey()}
}

func (p *StripeProcessor) AuthorizeAndCapture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	intent, err := p.api.Charge(ctx, stripe.ChargeParams{
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		PaymentMethodID: req.SourceID,
		OrderID:         req.OrderID.String(),
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return CaptureResult{}, err
	}
	return stripeResult(intent), nil
}

// Lookup re-reads an intent the browser finished, e.g. after a 3DS challenge.
func (p *StripeProcessor) Lookup(ctx context.Context, reference string) (CaptureResult, error) {
	intent, err := p.api.GetPaymentIntent(ctx, reference)
	if err != nil {
		return CaptureResult{}, err
	}
	return stripeResult(intent), nil
}

func stripeResult(intent *stripego.PaymentIntent) CaptureResult {
	if intent == nil {
		return CaptureResult{}
	}
	raw, _ := json.Marshal(intent)
	return CaptureResult{
		OK:             stripe.Succeeded(intent),
		Reference:      intent.ID,
		OrderReference: intent.Metadata[stripe.OrderIDMetadataKey],
		Status:         string(intent.Status),
		AmountCents:    intent.Amount,
		Email:          intent.ReceiptEmail,
		Detail:         raw,
	}
}

// PayPalProcessor only publishes the client id; the PayPal buttons capture in the browser
// and post the result back.
type PayPalProcessor struct {
	clientID string
}

func NewPayPalProcessor(clientID string) (*PayPalProcessor, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("paypal client id required")
	}
	return &PayPalProcessor{clientID: clientID}, nil
}

func (p *PayPalProcessor) Name() string { return "paypal" }

func (p *PayPalProcessor) ClientConfig() ProcessorConfig {
	return ProcessorConfig{ClientID: p.clientID}
}
