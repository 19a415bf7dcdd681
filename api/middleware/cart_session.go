package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CartSessionHeader carries a guest's cart session between requests.
const CartSessionHeader = "X-Cart-Session"

var guestSessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// CartSession resolves which cart a request operates on. Signed-in users always get
// their own cart; guests send the header, or receive a fresh one in the response.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if userID := UserIDFromContext(r.Context()); userID != "" {
				sessionID = "user-" + userID
			} else {
				guest := strings.TrimSpace(r.Header.Get(CartSessionHeader))
				switch {
				case guest == "":
					guest = "guest-" + uuid.NewString()
				case !guestSessionPattern.MatchString(guest):
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart session").
						WithDetails(map[string]any{"header": CartSessionHeader}))
					return
				}
				w.Header().Set(CartSessionHeader, guest)
				sessionID = guest
			}

			ctx := WithCartSession(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
