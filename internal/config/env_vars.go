package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	envVar        = "ENV"
	logLevelVar   = "LOG_LEVEL"
	auditDBVar    = "AUDIT_DB_PATH"
	EnvDev        = "DEV"
	EnvLocal      = "local"
	EnvProduction = "production"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "9000")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "vAI Agent")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, EnvDev)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetAuditDBPath is the sqlite file backing the verification ledger.
func (EnvVars) GetAuditDBPath() string {
	return GetEnv(auditDBVar, "vai-audit.db")
}

// IsLocal reports whether the process runs against developer infrastructure.
func IsLocal(env string) bool {
	return strings.EqualFold(env, EnvDev) || strings.EqualFold(env, EnvLocal)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses a Go duration ("2s", "5m"). Invalid or non-positive values
// fall back to the default.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
