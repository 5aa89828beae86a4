package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// Ingest endpoint
	IngestAPIKey string `env:"INGEST_API_KEY"`
	AudioDir     string `env:"AUDIO_DIR" default:"./audio"`

	// Gateway
	AllowedOrigins        string        `env:"ALLOWED_ORIGINS" default:""`
	HeartbeatInterval     time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	MinMessageInterval    time.Duration `env:"MIN_MESSAGE_INTERVAL" default:"100ms"`
	MessageBurstCeiling   int           `env:"MESSAGE_BURST_CEILING" default:"50"`
	MaxConnectionsPerUser int           `env:"MAX_CONNECTIONS_PER_USER" default:"8"`
	MaxConnections        int64         `env:"MAX_CONNECTIONS" default:"10000"`

	// Session registry
	CleanupGrace time.Duration `env:"SESSION_CLEANUP_GRACE" default:"5m"`

	// Audio queue
	AudioQueueCapacity int `env:"AUDIO_QUEUE_CAPACITY" default:"10"`

	// Broadcast pipeline
	StalenessHorizon     time.Duration `env:"BROADCAST_STALENESS_HORIZON" default:"3h"`
	LatestTranscriptions int           `env:"LATEST_TRANSCRIPTIONS" default:"30"`

	// Subscription matching
	SubscriptionCacheTTL time.Duration `env:"SUBSCRIPTION_CACHE_TTL" default:"60s"`
	PatternMaxLength     int           `env:"PATTERN_MAX_LENGTH" default:"100"`
	PatternBudget        time.Duration `env:"PATTERN_BUDGET" default:"100ms"`

	// Notifications (optional; empty disables email dispatch)
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN" default:""`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN" default:""`
	NotificationSender   string `env:"NOTIFICATION_SENDER" default:""`

	// IP rate limiting on HTTP routes
	IngestRatePerSecond float64 `env:"INGEST_RATE_PER_SECOND" default:"10"`
	IngestRateBurst     int     `env:"INGEST_RATE_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":   cfg.DatabaseURL,
		"REDIS_URL":      cfg.RedisURL,
		"INGEST_API_KEY": cfg.IngestAPIKey,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.MaxConnectionsPerUser < 1 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_USER must be at least 1")
	}
	if cfg.AudioQueueCapacity < 1 {
		return fmt.Errorf("AUDIO_QUEUE_CAPACITY must be at least 1")
	}
	if cfg.PatternMaxLength < 1 {
		return fmt.Errorf("PATTERN_MAX_LENGTH must be at least 1")
	}

	return nil
}

// Origins returns the parsed allow-list of WebSocket origins.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
