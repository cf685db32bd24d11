package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	BrokerURL   string

	StorageAccountID string
	StorageBucket    string
	StorageAccessKey string
	StorageSecretKey string
	StoragePublicURL string

	AnalysisWebhookURL   string
	AnalysisWebhookToken string

	PaymentBaseURL     string
	PaymentAPIKey      string
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	EmailProvider     string
	NotifyMaxAttempts int

	UploadMaxRetries int
	UploadRetryDelay time.Duration

	PollInterval time.Duration
	BatchSize    int

	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		BrokerURL:   os.Getenv("AMQP_URL"),

		StorageAccountID: os.Getenv("R2_ACCOUNT_ID"),
		StorageBucket:    os.Getenv("R2_BUCKET"),
		StorageAccessKey: os.Getenv("R2_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("R2_SECRET_KEY"),
		StoragePublicURL: os.Getenv("R2_PUBLIC_URL"),

		AnalysisWebhookURL:   os.Getenv("ANALYSIS_WEBHOOK_URL"),
		AnalysisWebhookToken: os.Getenv("ANALYSIS_WEBHOOK_TOKEN"),

		PaymentBaseURL:     os.Getenv("PAYMENT_BASE_URL"),
		PaymentAPIKey:      os.Getenv("PAYMENT_API_KEY"),
		CheckoutSuccessURL: os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:  os.Getenv("CHECKOUT_CANCEL_URL"),

		EmailProvider:     os.Getenv("EMAIL_PROVIDER"),
		NotifyMaxAttempts: readInt("NOTIFY_MAX_ATTEMPTS", 3),

		UploadMaxRetries: readInt("UPLOAD_MAX_RETRIES", 3),
		UploadRetryDelay: readDurationSeconds("UPLOAD_RETRY_DELAY_SECONDS", 1),

		PollInterval: readDurationSeconds("POLL_INTERVAL_SECONDS", 5),
		BatchSize:    readInt("BATCH_SIZE", 50),

		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
