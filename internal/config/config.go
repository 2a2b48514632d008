package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to each component explicitly.
// Processor keys and the webhook secret never live in package-level state.
type Config struct {
	ListenAddr          string
	PGDSN               string
	MongoURI            string
	RedisAddr           string
	RabbitURL           string
	StripeSecretKey     string
	StripeWebhookSecret string
	MapsAPIKey          string
	IdempotencyTTL      time.Duration
	OTLPEndpoint        string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	idempTTL, _ := time.ParseDuration(os.Getenv("IDEMPOTENCY_TTL"))
	if idempTTL == 0 {
		idempTTL = time.Hour
	}

	return &Config{
		ListenAddr:          listenAddr,
		PGDSN:               os.Getenv("PG_DSN"),
		MongoURI:            os.Getenv("MONGO_URI"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RabbitURL:           os.Getenv("RABBIT_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		MapsAPIKey:          os.Getenv("MAPS_API_KEY"),
		IdempotencyTTL:      idempTTL,
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
