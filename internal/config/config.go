package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/goatkit/goatlink/internal/constants"
	"github.com/goatkit/goatlink/internal/database"
)

// Config holds every runtime knob, loaded from the environment with an
// optional .env file.
type Config struct {
	ListenAddr  string
	MetricsAddr string
	LogLevel    string
	LogFile     string

	DBDriver string
	DBDSN    string

	SessionTimeout time.Duration
	SweepInterval  time.Duration
	ForwardWorkers int
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":7410"),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
		DBDriver:       getEnv("DB_DRIVER", database.DriverSQLite),
		DBDSN:          getEnv("DB_DSN", "goatlink.db"),
		SessionTimeout: minutesEnv("SESSION_TIMEOUT_MINUTES", constants.DefaultSessionIdleTimeout),
		SweepInterval:  minutesEnv("SESSION_SWEEP_MINUTES", constants.DefaultSweepInterval),
		ForwardWorkers: intEnv("MEDIA_FORWARD_WORKERS", 4),
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: LISTEN_ADDR is required")
	}
	switch c.DBDriver {
	case database.DriverSQLite, database.DriverMySQL, database.DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("config: DB_DSN is required")
	}
	if c.ForwardWorkers < 1 {
		return errors.New("config: MEDIA_FORWARD_WORKERS must be at least 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func minutesEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Minute
}
