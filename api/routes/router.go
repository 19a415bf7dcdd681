package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// KVStore is the redis surface the HTTP layer needs: idempotency records, rate limit
// counters and the readiness ping.
type KVStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	kv KVStore,
	gatherer prometheus.Gatherer,
	carts controllers.CartOpener,
	ordersSvc orders.Service,
	paymentsSvc payments.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	paymentPolicy := middleware.NewRateLimitPolicy(
		"payments",
		cfg.HTTP.RateLimitWindow,
		cfg.HTTP.RateLimitIP,
		cfg.HTTP.RateLimitUser,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": kv,
		}))
	})
	if cfg.Metrics.Enabled && gatherer != nil {
		r.Handle(metricsPath(cfg.Metrics.Path), promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.CartSession(logg))
			r.Get("/", controllers.CartFetch(carts, logg))
			r.Delete("/", controllers.CartClear(carts, logg))
			r.Post("/items", controllers.CartAddItem(carts, logg))
			r.Post("/items/{productId}/increase", controllers.CartIncrease(carts, logg))
			r.Post("/items/{productId}/decrease", controllers.CartDecrease(carts, logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(carts, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.CartSession(logg))
			r.Use(middleware.Idempotency(kv, logg))

			r.Post("/checkout", controllers.Checkout(ordersSvc, carts, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/history", controllers.OrderHistory(ordersSvc, logg))
				r.Get("/{orderId}", controllers.OrderDetail(ordersSvc, logg))
				r.Get("/{orderId}/payment-config", controllers.PaymentConfig(paymentsSvc, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimit(paymentPolicy, kv, logg))
					r.Post("/{orderId}/capture", controllers.CapturePayment(paymentsSvc, logg))
					r.Put("/{orderId}/pay", controllers.ConfirmPayment(paymentsSvc, logg))
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
			r.Use(middleware.Idempotency(kv, logg))
			r.Get("/summary", controllers.AdminSummary(ordersSvc, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(ordersSvc, logg))
				r.Put("/{orderId}/deliver", controllers.AdminDeliverOrder(ordersSvc, logg))
				r.Post("/{orderId}/cash", controllers.AdminCollectCash(paymentsSvc, logg))
			})
		})
	})

	return r
}

func metricsPath(path string) string {
	if path == "" {
		return "/metrics"
	}
	return path
}
