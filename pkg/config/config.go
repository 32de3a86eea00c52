package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"kazichain-ussd/pkg/logging"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config holds the server configuration, read from the environment.
type Config struct {
	Port string `env:"PORT" envDefault:"5001"`

	// ServiceCode is the USSD code the aggregator routes to this server.
	// Callbacks for other codes are still served but logged.
	ServiceCode string `env:"USSD_SERVICE_CODE"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"ussd_database.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	SeedDemo    bool   `env:"SEED_DEMO" envDefault:"true"`

	SessionBackend   string        `env:"SESSION_BACKEND" envDefault:"memory"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"5m"`
	SessionMaxSize   int           `env:"SESSION_MAX_SIZE" envDefault:"100000"`
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisKeyPrefix   string        `env:"REDIS_KEY_PREFIX" envDefault:"ussd:"`
	SessionOpTimeout time.Duration `env:"SESSION_OP_TIMEOUT" envDefault:"500ms"`

	PaymentTimeout time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`

	SMS SMSConfig `envPrefix:"SMS_"`

	WebAppLink string `env:"WEB_APP_LINK"`

	Log LogConfig `envPrefix:"LOG_"`
}

// SMSConfig configures the notification side channel.
type SMSConfig struct {
	Username    string        `env:"USERNAME"`
	APIKey      string        `env:"API_KEY"`
	SenderID    string        `env:"SENDER_ID"`
	Endpoint    string        `env:"ENDPOINT" envDefault:"https://api.africastalking.com/version1/messaging"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"10s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay  time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
	QueueSize   int           `env:"QUEUE_SIZE" envDefault:"1000"`
	Workers     int           `env:"WORKERS" envDefault:"2"`
}

// Enabled reports whether gateway credentials are present.
func (c SMSConfig) Enabled() bool {
	return c.Username != "" && c.APIKey != ""
}

// LogConfig mirrors logging.Config in environment form.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Dev    bool   `env:"DEV"`
}

// Logging converts the environment settings into a logging.Config.
func (c LogConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Level
	cfg.Format = c.Format
	cfg.Development = c.Dev
	return cfg
}

// Load reads an optional .env file from dir and parses the environment.
func Load(dir string) (Config, error) {
	path := ".env"
	if dir != "" {
		path = strings.TrimRight(dir, "/") + "/.env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names and required settings.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.SessionBackend {
	case SessionMemory, SessionRedis:
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.PaymentTimeout <= 0 {
		return errors.New("config: PAYMENT_TIMEOUT must be positive")
	}
	if c.SMS.MaxAttempts < 1 {
		return errors.New("config: SMS_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
