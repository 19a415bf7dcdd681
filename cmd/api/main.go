package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/square"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	snapshots, err := snapshotStore(cfg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create cart snapshot store", err)
		os.Exit(1)
	}
	carts, err := cart.NewManager(snapshots, catalog.NewRepository(dbClient.DB()), logg, cfg.Cart)
	if err != nil {
		logg.Error(ctx, "failed to create cart manager", err)
		os.Exit(1)
	}

	orderSvc, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		pricing.RulesFromConfig(cfg.Pricing),
		metrics.NewOrderMetrics(reg),
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	registry, err := processorRegistry(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to register payment processors", err)
		os.Exit(1)
	}
	paymentSvc, err := payments.NewService(orderSvc, registry, redisClient, cfg.Payments, metrics.NewPaymentMetrics(reg), logg)
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	methods := make([]string, 0)
	for _, m := range registry.Methods() {
		methods = append(methods, string(m))
	}
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"instance":        instance.ID("local"),
		"cart_store":      cfg.Cart.SnapshotStore,
		"payment_methods": strings.Join(methods, ","),
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, reg, carts, orderSvc, paymentSvc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "graceful shutdown failed", err)
		}
	}
}

func snapshotStore(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client) (cart.SnapshotStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cart.SnapshotStore)) {
	case config.SnapshotStoreDB:
		return cart.NewDBStore(dbClient.DB(), cfg.Cart.SnapshotTTL)
	case config.SnapshotStoreRedis:
		return cart.NewRedisStore(redisClient, cfg.Cart.SnapshotTTL)
	default:
		return nil, fmt.Errorf("unknown cart snapshot store %q", cfg.Cart.SnapshotStore)
	}
}

// processorRegistry wires every processor with credentials. Cash is always available and
// needs no processor.
func processorRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*payments.Registry, error) {
	registry := payments.NewRegistry()

	if cfg.Square.Enabled() {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		p, err := payments.NewSquareProcessor(client)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(enums.PaymentMethodSquare, p); err != nil {
			return nil, err
		}
	}

	if cfg.Stripe.Enabled() {
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		p, err := payments.NewStripeProcessor(client)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(enums.PaymentMethodStripe, p); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.PayPal.ClientID) != "" {
		p, err := payments.NewPayPalProcessor(cfg.PayPal.ClientID)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(enums.PaymentMethodPayPal, p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
