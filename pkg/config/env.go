package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "MMN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "MMN_APP_ENV"
	EnvDBDSN    = "MMN_DB_DSN"
	EnvDBHost   = "MMN_DB_HOST"
	EnvDBUser   = "MMN_DB_USER"
	EnvDBName   = "MMN_DB_NAME"
	EnvRedisURL = "MMN_REDIS_URL"

	EnvCompBinaryRate    = "MMN_COMP_BINARY_RATE"
	EnvCompUnilevelRates = "MMN_COMP_UNILEVEL_RATES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
