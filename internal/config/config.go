package config

import (
	"os"
	"strings"
)

// Config carries all environment-driven settings for the platform binaries.
type Config struct {
	DatabaseURL    string
	ServerPort     string
	RedisAddr      string
	KafkaBrokers   []string
	KafkaTopic     string
	AllowedOrigins []string
	ServiceName    string
}

func Load() Config {
	return Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServerPort:     getenv("SERVER_PORT", "8080"),
		RedisAddr:      os.Getenv("REDIS_ADDR"), // empty disables the price cache
		KafkaBrokers:   splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getenv("KAFKA_TOPIC", "buildmart.commerce.events"),
		AllowedOrigins: splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		ServiceName:    getenv("SERVICE_NAME", "buildmart-server"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
