package config

import (
	"os"
	"strings"
	"time"
)

// Server captures service level configuration.
type Server struct {
	Addr          string
	MetricsAddr   string
	DatabaseURL   string
	JWTSigningKey string
	Kafka         Kafka
}

// Kafka captures chain-event ingestion configuration.
type Kafka struct {
	Brokers string
	GroupID string
	Topics  []string
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server and workers.
var ShutdownTimeout = 10 * time.Second

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CREDIBLE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	metricsAddr := os.Getenv("CREDIBLE_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topics := splitList(os.Getenv("KAFKA_TOPICS"))
	if len(topics) == 0 {
		topics = []string{"chain.events"}
	}
	groupID := os.Getenv("KAFKA_GROUP_ID")
	if groupID == "" {
		groupID = "credible-projector"
	}

	return Server{
		Addr:          addr,
		MetricsAddr:   metricsAddr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: jwtSigningKey,
		Kafka: Kafka{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			GroupID: groupID,
			Topics:  topics,
		},
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
