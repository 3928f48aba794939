package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "STOREFRONT_APP_ENV"
	EnvPort               = "STOREFRONT_APP_PORT"
	EnvDBDSN              = "STOREFRONT_DB_DSN"
	EnvDBHost             = "STOREFRONT_DB_HOST"
	EnvDBUser             = "STOREFRONT_DB_USER"
	EnvDBName             = "STOREFRONT_DB_NAME"
	EnvRedisURL           = "STOREFRONT_REDIS_URL"
	EnvJWTSecret          = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer          = "STOREFRONT_JWT_ISSUER"
	EnvCheckoutTaxRateBps = "STOREFRONT_CHECKOUT_TAX_RATE_BPS"
	EnvOrderNumberPrefix  = "STOREFRONT_ORDER_NUMBER_PREFIX"
	EnvStripeAPIKey       = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeSecret       = "STOREFRONT_STRIPE_SECRET"
	EnvLogFormat          = "STOREFRONT_LOG_FORMAT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
