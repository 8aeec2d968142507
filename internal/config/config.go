package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port          string
	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string
	SessionTTL    time.Duration
	SweepSchedule string
	CORSOrigins   []string
	OTLPEndpoint  string
	LogLevel      string
	ServiceName   string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using environment", "error", err)
	}

	cfg := &Config{
		Port:          getenv("PORT", "3001"),
		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", DriverMongo)),
		MongoURI:      getenv("MONGODB_URI", "mongodb://localhost:27017/ledger"),
		MongoDatabase: os.Getenv("MONGODB_DATABASE"),
		PostgresDSN:   getenv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=ledger sslmode=disable"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKER")),
		SessionTTL:    getDuration("SESSION_TTL", 24*time.Hour),
		SweepSchedule: getenv("SESSION_SWEEP_SCHEDULE", "@every 10m"),
		CORSOrigins:   splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		ServiceName:   getenv("SERVICE_NAME", "ledger-service"),
	}

	slog.Info("config loaded",
		"port", cfg.Port,
		"store_driver", cfg.StoreDriver,
		"redis_enabled", cfg.RedisAddr != "",
		"kafka_brokers", cfg.KafkaBrokers,
		"session_ttl", cfg.SessionTTL.String())
	return cfg
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
