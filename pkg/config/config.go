package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev = "dev"

	EnvAppEnv             = "STOREFRONT_APP_ENV"
	EnvPort               = "STOREFRONT_APP_PORT"
	EnvDBDSN              = "STOREFRONT_DB_DSN"
	EnvDBHost             = "STOREFRONT_DB_HOST"
	EnvDBUser             = "STOREFRONT_DB_USER"
	EnvDBName             = "STOREFRONT_DB_NAME"
	EnvRedisURL           = "STOREFRONT_REDIS_URL"
	EnvJWTSecret          = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer          = "STOREFRONT_JWT_ISSUER"
	EnvGCPProjectID       = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic  = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvCartSnapshotStore  = "STOREFRONT_CART_SNAPSHOT_STORE"
	EnvPricingTaxRate     = "STOREFRONT_PRICING_TAX_RATE"
	EnvPricingFreeShipMin = "STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD"
	EnvPricingFlatFee     = "STOREFRONT_PRICING_FLAT_SHIPPING_FEE"
	EnvPayPalClientID     = "STOREFRONT_PAYPAL_CLIENT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Cart         CartConfig
	Pricing      PricingConfig
	Payments     PaymentsConfig
	Square       SquareConfig
	Stripe       StripeConfig
	PayPal       PayPalConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

// HTTPConfig holds edge concerns of the public API.
type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow time.Duration `envconfig:"STOREFRONT_PAYMENT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitIP     int           `envconfig:"STOREFRONT_PAYMENT_RATE_LIMIT_IP" default:"30"`
	RateLimitUser   int           `envconfig:"STOREFRONT_PAYMENT_RATE_LIMIT_USER" default:"10"`
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig carries the verification settings for tokens minted by the auth service.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

const (
	SnapshotStoreRedis = "redis"
	SnapshotStoreDB    = "db"
)

// CartConfig controls where cart snapshots live and how writes are retried.
type CartConfig struct {
	SnapshotStore  string        `envconfig:"STOREFRONT_CART_SNAPSHOT_STORE" default:"redis"`
	SnapshotTTL    time.Duration `envconfig:"STOREFRONT_CART_SNAPSHOT_TTL" default:"720h"`
	PersistRetries int           `envconfig:"STOREFRONT_CART_PERSIST_RETRIES" default:"3"`
	PersistBackoff time.Duration `envconfig:"STOREFRONT_CART_PERSIST_BACKOFF" default:"50ms"`
}

func (c CartConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.SnapshotStore)) {
	case SnapshotStoreRedis, SnapshotStoreDB:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvCartSnapshotStore, SnapshotStoreRedis, SnapshotStoreDB)
	}
}

type PricingConfig struct {
	FreeShippingThreshold decimal.Decimal `envconfig:"STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD" default:"200"`
	FlatShippingFee       decimal.Decimal `envconfig:"STOREFRONT_PRICING_FLAT_SHIPPING_FEE" default:"15"`
	TaxRate               decimal.Decimal `envconfig:"STOREFRONT_PRICING_TAX_RATE" default:"0.15"`
}

func (p PricingConfig) validate() error {
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingTaxRate)
	}
	if p.FlatShippingFee.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingFlatFee)
	}
	if p.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingFreeShipMin)
	}
	return nil
}

// PaymentsConfig tunes the reconciliation protocol around external processors.
type PaymentsConfig struct {
	Currency         string        `envconfig:"STOREFRONT_PAYMENTS_CURRENCY" default:"USD"`
	CaptureTimeout   time.Duration `envconfig:"STOREFRONT_PAYMENTS_CAPTURE_TIMEOUT" default:"20s"`
	LockTTL          time.Duration `envconfig:"STOREFRONT_PAYMENTS_LOCK_TTL" default:"45s"`
	MarkPaidRetries  int           `envconfig:"STOREFRONT_PAYMENTS_MARK_PAID_RETRIES" default:"5"`
	MarkPaidBackoff  time.Duration `envconfig:"STOREFRONT_PAYMENTS_MARK_PAID_BACKOFF" default:"100ms"`
	BreakerFailures  int           `envconfig:"STOREFRONT_PAYMENTS_BREAKER_FAILURES" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"STOREFRONT_PAYMENTS_BREAKER_COOLDOWN" default:"30s"`
	BreakerHalfOpenN int           `envconfig:"STOREFRONT_PAYMENTS_BREAKER_HALF_OPEN_REQUESTS" default:"1"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	ApplicationID string `envconfig:"STOREFRONT_SQUARE_APPLICATION_ID"`
	LocationID    string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
}

// Enabled reports whether enough credentials exist to wire the Square processor.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type StripeConfig struct {
	APIKey         string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	PublishableKey string `envconfig:"STOREFRONT_STRIPE_PUBLISHABLE_KEY"`
	Env            string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Enabled reports whether the Stripe processor can be wired.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PayPalConfig struct {
	ClientID string `envconfig:"STOREFRONT_PAYPAL_CLIENT_ID" default:"sb"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"STOREFRONT_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"STOREFRONT_METRICS_PATH" default:"/metrics"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
