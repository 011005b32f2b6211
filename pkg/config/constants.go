package config

const EnvPrefix = "DISHDASH"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "DISHDASH_APP_ENV"
	EnvPort      = "DISHDASH_APP_PORT"
	EnvLogLevel  = "DISHDASH_LOG_LEVEL"
	EnvUseSQLite = "DISHDASH_USE_SQLITE"

	EnvDBDSN  = "DISHDASH_DB_DSN"
	EnvDBHost = "DISHDASH_DB_HOST"
	EnvDBUser = "DISHDASH_DB_USER"
	EnvDBName = "DISHDASH_DB_NAME"

	EnvRedisURL = "DISHDASH_REDIS_URL"

	EnvJWTSecret = "DISHDASH_JWT_SECRET"
	EnvJWTIssuer = "DISHDASH_JWT_ISSUER"

	EnvGCPProjectID = "DISHDASH_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic = "DISHDASH_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "DISHDASH_PUBSUB_ORDERS_SUBSCRIPTION"

	EnvDispatchMaxAttempts  = "DISHDASH_DISPATCH_MAX_ATTEMPTS"
	EnvDispatchScopes       = "DISHDASH_DISPATCH_SCOPES"
	EnvDispatchDedupeWindow = "DISHDASH_DISPATCH_DEDUPE_WINDOW"
)

var hostDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
