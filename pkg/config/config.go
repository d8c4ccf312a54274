package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Square       SquareConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Webhooks     WebhookConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	switch cfg.Checkout.GatewayName() {
	case GatewaySquare:
		if err := cfg.Square.validate(); err != nil {
			return nil, err
		}
	case GatewayStripe:
		if strings.TrimSpace(cfg.Stripe.APIKey) == "" {
			return nil, fmt.Errorf("%s is required when %s=%s", EnvStripeAPIKey, EnvCheckoutGateway, GatewayStripe)
		}
		if strings.TrimSpace(cfg.Stripe.Secret) == "" {
			return nil, fmt.Errorf("%s is required when %s=%s", EnvStripeWebhookSecret, EnvCheckoutGateway, GatewayStripe)
		}
	case GatewayFake:
		if !cfg.App.IsDev() {
			return nil, fmt.Errorf("%s=%s is only allowed when %s=%s", EnvCheckoutGateway, GatewayFake, EnvAppEnv, AppEnvDev)
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETCHECKOUT_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETCHECKOUT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETCHECKOUT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETCHECKOUT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETCHECKOUT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETCHECKOUT_DB_DSN"`
	Driver string `envconfig:"MARKETCHECKOUT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETCHECKOUT_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETCHECKOUT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETCHECKOUT_DB_USER"`
	LegacyPassword string `envconfig:"MARKETCHECKOUT_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETCHECKOUT_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETCHECKOUT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETCHECKOUT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETCHECKOUT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETCHECKOUT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETCHECKOUT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"MARKETCHECKOUT_DB_LOCK_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETCHECKOUT_REDIS_URL" required:"true"`
	Password     string        `envconfig:"MARKETCHECKOUT_REDIS_PASSWORD"`
	PoolSize     int           `envconfig:"MARKETCHECKOUT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETCHECKOUT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETCHECKOUT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETCHECKOUT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETCHECKOUT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETCHECKOUT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETCHECKOUT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETCHECKOUT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETCHECKOUT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETCHECKOUT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"MARKETCHECKOUT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKETCHECKOUT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MARKETCHECKOUT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKETCHECKOUT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"MARKETCHECKOUT_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription       string `envconfig:"MARKETCHECKOUT_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"MARKETCHECKOUT_PUBSUB_NOTIFICATION_TOPIC" default:"mc-notification-requests"`
	NotificationSubscription string `envconfig:"MARKETCHECKOUT_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETCHECKOUT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETCHECKOUT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETCHECKOUT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SquareConfig struct {
	AccessToken     string `envconfig:"MARKETCHECKOUT_SQUARE_ACCESS_TOKEN"`
	Env             string `envconfig:"MARKETCHECKOUT_SQUARE_ENV" default:"sandbox"`
	LocationID      string `envconfig:"MARKETCHECKOUT_SQUARE_LOCATION_ID"`
	WebhookKey      string `envconfig:"MARKETCHECKOUT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	NotificationURL string `envconfig:"MARKETCHECKOUT_SQUARE_WEBHOOK_NOTIFICATION_URL"`
	BaseURL         string `envconfig:"MARKETCHECKOUT_SQUARE_BASE_URL"`
}

func (s SquareConfig) validate() error {
	missing := []string{}
	if strings.TrimSpace(s.AccessToken) == "" {
		missing = append(missing, EnvSquareAccessToken)
	}
	if strings.TrimSpace(s.LocationID) == "" {
		missing = append(missing, EnvSquareLocationID)
	}
	if strings.TrimSpace(s.WebhookKey) == "" {
		missing = append(missing, EnvSquareWebhookKey)
	}
	if strings.TrimSpace(s.NotificationURL) == "" {
		missing = append(missing, EnvSquareNotificationURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("square gateway requires %s", strings.Join(missing, ", "))
	}
	return nil
}

type StripeConfig struct {
	APIKey string `envconfig:"MARKETCHECKOUT_STRIPE_API_KEY"`
	Secret string `envconfig:"MARKETCHECKOUT_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"MARKETCHECKOUT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutConfig holds the values read once at startup and handed to the
// checkout service.
type CheckoutConfig struct {
	CommissionRate decimal.Decimal `envconfig:"MARKETCHECKOUT_COMMISSION_RATE" default:"0.10"`
	Currency       string          `envconfig:"MARKETCHECKOUT_CURRENCY" default:"USD"`
	Gateway        string          `envconfig:"MARKETCHECKOUT_CHECKOUT_GATEWAY" default:"square"`
	PaymentTimeout time.Duration   `envconfig:"MARKETCHECKOUT_PAYMENT_TIMEOUT" default:"15s"`
	NotifyTimeout  time.Duration   `envconfig:"MARKETCHECKOUT_NOTIFY_TIMEOUT" default:"10s"`
	PendingPollAge time.Duration   `envconfig:"MARKETCHECKOUT_PENDING_POLL_AGE" default:"15m"`
	PollInterval   time.Duration   `envconfig:"MARKETCHECKOUT_PENDING_POLL_INTERVAL" default:"5m"`
}

// GatewayName returns the normalized gateway identifier.
func (c CheckoutConfig) GatewayName() string {
	return strings.TrimSpace(strings.ToLower(c.Gateway))
}

func (c CheckoutConfig) validate() error {
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1), got %s", EnvCommissionRate, c.CommissionRate.String())
	}
	if _, err := enums.ParseCurrency(c.Currency); err != nil {
		return fmt.Errorf("%s: %w", EnvCurrency, err)
	}
	switch c.GatewayName() {
	case GatewaySquare, GatewayStripe, GatewayFake:
	default:
		return fmt.Errorf("%s must be %s, %s or %s", EnvCheckoutGateway, GatewaySquare, GatewayStripe, GatewayFake)
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentTimeout)
	}
	return nil
}

// CronConfig tunes the cron worker's housekeeping jobs.
type CronConfig struct {
	LockTTL               time.Duration `envconfig:"MARKETCHECKOUT_CRON_LOCK_TTL" default:"10m"`
	NotificationRetention time.Duration `envconfig:"MARKETCHECKOUT_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"MARKETCHECKOUT_OUTBOX_RETENTION" default:"720h"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MARKETCHECKOUT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:marketcheckout.db?cache=shared&_busy_timeout=5000"
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
