package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/yeremiapane/tenant-realtime/utils"
)

// Configuration holds everything the server needs at startup.
type Configuration struct {
	Address string `env:"ADDRESS" envDefault:":8080"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"` // mysql or sqlite
	DBDSN    string `env:"DB_DSN" envDefault:"realtime.db"`

	JWTSecret     string `env:"JWT_SECRET,required"`
	WebhookSecret string `env:"WEBHOOK_SECRET"` // empty rejects every webhook

	HeartbeatInterval     time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	SubscriptionQueueSize int           `env:"SUBSCRIPTION_QUEUE_SIZE" envDefault:"64"`
	RegistryShards        int           `env:"REGISTRY_SHARDS" envDefault:"32"`
	MetricsInterval       time.Duration `env:"METRICS_INTERVAL" envDefault:"60s"` // 0 disables
	MetricsQueryTimeout   time.Duration `env:"METRICS_QUERY_TIMEOUT" envDefault:"5s"`
	OutboxInterval        time.Duration `env:"OUTBOX_INTERVAL" envDefault:"1s"` // 0 disables
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"20"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	Log utils.LogConfig
}

// Load reads the given .env files (".env" when none are named) and parses
// the environment. Missing .env files are not an error.
func Load(files ...string) (*Configuration, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Configuration
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SubscriptionQueueSize < 1 {
		return nil, fmt.Errorf("SUBSCRIPTION_QUEUE_SIZE must be positive, got %d", cfg.SubscriptionQueueSize)
	}
	if cfg.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", cfg.HeartbeatInterval)
	}
	return &cfg, nil
}
