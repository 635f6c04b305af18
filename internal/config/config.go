package config

type Config interface {
	EnvConfig
	CorsConfig
	RedisConfig
	HoviConfig
	BlandConfig
	WalletConfig
	CheqdConfig
	PollConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAuditDBPath() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	Redis
	Services
	Poll
	Security
}

func New() Config {
	return mainConfig{}
}
