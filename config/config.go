package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// DefaultJWTSecret is the development fallback for JWT_SECRET
const DefaultJWTSecret = "change-me"

type Config struct {
	Server struct {
		Port            string        `env:"PORT" envDefault:"8080"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
		AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	Database struct {
		Path     string `env:"DATABASE_PATH" envDefault:"database/rentals.db"`
		SeedFile string `env:"SEED_FILE"`
	}

	Auth struct {
		JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me"`
		TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
	}

	Redis struct {
		// Caching is disabled when Addr is empty
		Addr     string        `env:"REDIS_ADDR"`
		Password string        `env:"REDIS_PASSWORD"`
		DB       int           `env:"REDIS_DB" envDefault:"0"`
		TTL      time.Duration `env:"LISTING_CACHE_TTL" envDefault:"10m"`
	}

	RabbitMQ struct {
		// Event publishing is disabled when URL is empty
		URL      string `env:"RABBITMQ_URL"`
		Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"rentals.events"`
	}

	MinIO struct {
		Endpoint       string `env:"MINIO_ENDPOINT"`
		PublicEndpoint string `env:"MINIO_PUBLIC_ENDPOINT"`
		AccessKey      string `env:"MINIO_ACCESS_KEY"`
		SecretKey      string `env:"MINIO_SECRET_KEY"`
		Bucket         string `env:"MINIO_BUCKET" envDefault:"property-images"`
		UseSSL         bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	}

	Geocoder struct {
		Enabled     bool          `env:"GEOCODER_ENABLED" envDefault:"true"`
		URL         string        `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org/search"`
		CacheDir    string        `env:"GEOCODER_CACHE_DIR"`
		MinInterval time.Duration `env:"GEOCODER_MIN_INTERVAL" envDefault:"1s"`
	}

	Telegram struct {
		// Alerts are disabled when BotToken is empty
		BotToken string `env:"TELEGRAM_BOT_TOKEN"`
		APIURL   string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	}

	// Processing configures the new-listing alert pipeline
	Processing struct {
		// Capacity of the new-listing queue, in batches
		QueueSize int `env:"LISTING_QUEUE_SIZE" envDefault:"100"`

		// Number of concurrent Telegram senders
		WorkerCount int `env:"ALERT_WORKERS" envDefault:"4"`

		// Maximum number of retries for failed storage steps
		MaxRetries int `env:"ALERT_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"ALERT_RETRY_DELAY" envDefault:"5s"`
	}

	Logging struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
		// Output is mirrored to a rotating file when File is set
		File       string `env:"LOG_FILE"`
		MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
		MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
		MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
	}
}

// LoadConfig reads an optional .env file and then the process environment
func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UsesDefaultJWTSecret reports whether tokens are signed with the development secret
func (c *Config) UsesDefaultJWTSecret() bool {
	return c.Auth.JWTSecret == DefaultJWTSecret
}
