package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CartOpener opens the cart bound to a session id.
type CartOpener interface {
	Open(ctx context.Context, sessionID string) (*cart.Session, error)
}

// Quantity is accepted from older clients but each add is always one unit.
type addCartItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"omitempty,min=1"`
}

// cartMutation matches the method expressions of *cart.Session.
type cartMutation func(session *cart.Session, ctx context.Context, productID uuid.UUID) error

// CartFetch returns the session's cart with totals.
func CartFetch(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := openCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session.View())
	}
}

// CartAddItem adds one unit of a product, reading its stock fresh from the catalog.
func CartAddItem(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := openCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := session.AddItem(r.Context(), payload.ProductID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session.View())
	}
}

func CartIncrease(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return cartItemHandler(carts, logg, (*cart.Session).Increase)
}

func CartDecrease(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return cartItemHandler(carts, logg, (*cart.Session).Decrease)
}

func CartRemoveItem(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return cartItemHandler(carts, logg, (*cart.Session).Remove)
}

// CartClear empties the cart, as on logout.
func CartClear(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := openCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := session.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session.View())
	}
}

func cartItemHandler(carts CartOpener, logg *logger.Logger, mutate cartMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := openCart(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := mutate(session, r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session.View())
	}
}

func openCart(r *http.Request, carts CartOpener) (*cart.Session, error) {
	if carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart manager unavailable")
	}
	return carts.Open(r.Context(), middleware.CartSessionFromContext(r.Context()))
}
