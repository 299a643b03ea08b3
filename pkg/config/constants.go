package config

const (
	EnvPrefix = "CONTRACTOR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "CONTRACTOR_APP_ENV"
	EnvLogLevel     = "CONTRACTOR_LOG_LEVEL"
	EnvLogWarnStack = "CONTRACTOR_LOG_WARN_STACK"
	EnvServiceKind  = "CONTRACTOR_SERVICE_KIND"

	EnvDBDSN     = "CONTRACTOR_DB_DSN"
	EnvDBHost    = "CONTRACTOR_DB_HOST"
	EnvDBPort    = "CONTRACTOR_DB_PORT"
	EnvDBUser    = "CONTRACTOR_DB_USER"
	EnvDBPass    = "CONTRACTOR_DB_PASSWORD"
	EnvDBName    = "CONTRACTOR_DB_NAME"
	EnvDBSSLMode = "CONTRACTOR_DB_SSLMODE"

	EnvRedisURL = "CONTRACTOR_REDIS_URL"

	EnvRabbitURL           = "CONTRACTOR_RABBIT_URL"
	EnvRabbitDomain        = "CONTRACTOR_RABBIT_DOMAIN"
	EnvRabbitExchange      = "CONTRACTOR_RABBIT_EXCHANGE"
	EnvRabbitQueue         = "CONTRACTOR_RABBIT_QUEUE"
	EnvRabbitDeadExchange  = "CONTRACTOR_RABBIT_DEAD_EXCHANGE"
	EnvRabbitDeadQueue     = "CONTRACTOR_RABBIT_DEAD_QUEUE"
	EnvRabbitRetryExchange = "CONTRACTOR_RABBIT_RETRY_EXCHANGE"
	EnvRabbitRetryTTLMS    = "CONTRACTOR_RABBIT_RETRY_TTL_MS"

	EnvScheduleDelayMS      = "CONTRACTOR_SCHEDULE_DELAY_MS"
	EnvOutboxBatchSize      = "CONTRACTOR_OUTBOX_BATCH_SIZE"
	EnvOutboxPublishTimeout = "CONTRACTOR_OUTBOX_PUBLISH_TIMEOUT"
	EnvOutboxClaimTTL       = "CONTRACTOR_OUTBOX_CLAIM_TTL"

	EnvAPIPort   = "CONTRACTOR_API_PORT"
	EnvAdminPort = "CONTRACTOR_ADMIN_PORT"

	EnvConsumerPrefetch        = "CONTRACTOR_CONSUMER_PREFETCH"
	EnvConsumerProcessingLease = "CONTRACTOR_CONSUMER_PROCESSING_LEASE"

	EnvUseSQLite   = "CONTRACTOR_USE_SQLITE"
	EnvAutoMigrate = "CONTRACTOR_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
