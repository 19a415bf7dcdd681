package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type captureRequest struct {
	SourceID string `json:"sourceId" validate:"required,max=512"`
}

// confirmPaymentRequest mirrors the capture details a browser SDK hands back. Unknown
// fields are kept in the raw audit payload.
type confirmPaymentRequest struct {
	ID           string `json:"id" validate:"required,max=255"`
	Status       string `json:"status" validate:"required,max=64"`
	EmailAddress string `json:"email_address"`
	AmountCents  int64  `json:"amountCents"`
	Payer        *struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Amount struct {
			Value decimal.Decimal `json:"value"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

// amountCents prefers the explicit field and falls back to PayPal's purchase unit total.
func (p confirmPaymentRequest) amountCents() int64 {
	if p.AmountCents > 0 {
		return p.AmountCents
	}
	var total decimal.Decimal
	for _, unit := range p.PurchaseUnits {
		total = total.Add(unit.Amount.Value)
	}
	return pricing.MinorUnits(total)
}

func (p confirmPaymentRequest) email() string {
	if p.EmailAddress != "" {
		return p.EmailAddress
	}
	if p.Payer != nil {
		return p.Payer.EmailAddress
	}
	return ""
}

// PaymentConfig returns what the browser needs to start authorizing this order.
func PaymentConfig(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cfg, err := svc.GetClientConfig(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

// CapturePayment charges the order server-side with a tokenized payment source.
func CapturePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload captureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Capture(r.Context(), orderID, payload.SourceID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// ConfirmPayment records a capture completed in the browser.
func ConfirmPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload confirmPaymentRequest
		raw, err := validators.DecodeLooseJSONBody(r, &payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmPayment(r.Context(), orderID, payments.CaptureResult{
			OK:          payments.Completed(payload.Status),
			Reference:   validators.SanitizeString(payload.ID, 255),
			Status:      validators.SanitizeString(payload.Status, 64),
			AmountCents: payload.amountCents(),
			Email:       validators.SanitizeString(payload.email(), 320),
			Detail:      raw,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}
