package config

const (
	EnvPrefix = "MARKETCHECKOUT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	GatewaySquare = "square"
	GatewayStripe = "stripe"
	GatewayFake   = "fake"
)

const (
	EnvAppEnv   = "MARKETCHECKOUT_APP_ENV"
	EnvPort     = "MARKETCHECKOUT_APP_PORT"
	EnvLogLevel = "MARKETCHECKOUT_LOG_LEVEL"

	EnvDBDSN  = "MARKETCHECKOUT_DB_DSN"
	EnvDBHost = "MARKETCHECKOUT_DB_HOST"
	EnvDBUser = "MARKETCHECKOUT_DB_USER"
	EnvDBName = "MARKETCHECKOUT_DB_NAME"

	EnvRedisURL = "MARKETCHECKOUT_REDIS_URL"

	EnvJWTSecret = "MARKETCHECKOUT_JWT_SECRET"
	EnvJWTIssuer = "MARKETCHECKOUT_JWT_ISSUER"

	EnvUseSQLite = "MARKETCHECKOUT_USE_SQLITE"

	EnvGCPProjectID            = "MARKETCHECKOUT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic       = "MARKETCHECKOUT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub         = "MARKETCHECKOUT_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubNotificationTopic = "MARKETCHECKOUT_PUBSUB_NOTIFICATION_TOPIC"

	EnvSquareAccessToken     = "MARKETCHECKOUT_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID      = "MARKETCHECKOUT_SQUARE_LOCATION_ID"
	EnvSquareWebhookKey      = "MARKETCHECKOUT_SQUARE_WEBHOOK_SIGNATURE_KEY"
	EnvSquareNotificationURL = "MARKETCHECKOUT_SQUARE_WEBHOOK_NOTIFICATION_URL"

	EnvStripeAPIKey        = "MARKETCHECKOUT_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "MARKETCHECKOUT_STRIPE_WEBHOOK_SECRET"

	EnvCommissionRate  = "MARKETCHECKOUT_COMMISSION_RATE"
	EnvCurrency        = "MARKETCHECKOUT_CURRENCY"
	EnvCheckoutGateway = "MARKETCHECKOUT_CHECKOUT_GATEWAY"
	EnvPaymentTimeout  = "MARKETCHECKOUT_PAYMENT_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
