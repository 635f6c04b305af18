package config

import "strconv"

type RedisConfig interface {
	GetRedisHost() string
	GetRedisPort() int
	GetRedisPassword() string
	GetRedisTLS() bool
}

type Redis struct{}

var _ RedisConfig = Redis{}

func (Redis) GetRedisHost() string {
	return GetEnv("REDIS_HOST", "localhost")
}

func (Redis) GetRedisPort() int {
	port, err := strconv.Atoi(GetEnv("REDIS_PORT", "6379"))
	if err != nil {
		return 6379
	}
	return port
}

func (Redis) GetRedisPassword() string {
	return GetEnv("REDIS_TOKEN", "")
}

// GetRedisTLS defaults to TLS everywhere except local development.
func (Redis) GetRedisTLS() bool {
	if v := GetEnv("REDIS_TLS", ""); v != "" {
		enabled, err := strconv.ParseBool(v)
		return err == nil && enabled
	}
	return !IsLocal(EnvVars{}.GetEnv())
}
