package config

import (
	"os"
	"strings"
)

// Config carries the relay's process-level settings, all sourced from
// environment variables.
type Config struct {
	Port        string
	RedisAddr   string
	CORSOrigins []string
}

func Load() *Config {
	return &Config{
		Port:      getEnvOrDefault("PORT", "8080"),
		RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		CORSOrigins: splitOrigins(getEnvOrDefault(
			"CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")),
	}
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
