package config

// EnvPrefix is passed to envconfig; the struct tags already carry the full
// variable names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "RESUMELOFT_DB_DSN"
	EnvDBHost = "RESUMELOFT_DB_HOST"
	EnvDBUser = "RESUMELOFT_DB_USER"
	EnvDBName = "RESUMELOFT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
