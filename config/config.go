/*
Package config loads server configuration from flags and environment.

PRECEDENCE:
  flag > environment > default. LoadDotEnv may seed the environment from a
  .env file first; variables already set in the process win over the file.

ENVIRONMENT:
  PORT, DB_DRIVER, DB_PATH, DATABASE_URL, LOG_LEVEL, ENVIRONMENT,
  KAFKA_BROKERS, KAFKA_TOPIC, CORS_ORIGINS, ACCOUNT_NUMBER_ATTEMPTS
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port                  int
	Driver                string
	DBPath                string
	DatabaseURL           string
	LogLevel              string
	Environment           string
	KafkaBrokers          []string
	KafkaTopic            string
	CORSOrigins           []string
	AccountNumberAttempts int
}

// Development reports whether the service runs with developer defaults.
func (c Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

func (c Config) EventsEnabled() bool { return len(c.KafkaBrokers) > 0 }

func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.AccountNumberAttempts <= 0 {
		return fmt.Errorf("config: ACCOUNT_NUMBER_ATTEMPTS must be positive, got %d", c.AccountNumberAttempts)
	}
	return nil
}

// LoadDotEnv reads .env (or the given files) into the environment. A
// missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load env file: %w", err)
	}
	return nil
}

// Load parses args (without the program name) over environment defaults
// and validates the result.
func Load(args []string) (Config, error) {
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return Config{}, err
	}
	attempts, err := getEnvInt("ACCOUNT_NUMBER_ATTEMPTS", 50)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:           getEnv("ENVIRONMENT", "development"),
		KafkaBrokers:          splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "ledger.movements"),
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		AccountNumberAttempts: attempts,
	}

	fsFlags := flag.NewFlagSet("server", flag.ContinueOnError)
	fsFlags.IntVar(&cfg.Port, "port", port, "HTTP server port")
	fsFlags.StringVar(&cfg.Driver, "driver", getEnv("DB_DRIVER", DriverSQLite), "Database driver: sqlite, postgres or memory")
	fsFlags.StringVar(&cfg.DBPath, "db", getEnv("DB_PATH", "ledger.db"), "SQLite database path (\":memory:\" for in-memory)")
	fsFlags.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection string")
	fsFlags.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	if err := fsFlags.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Driver = strings.ToLower(cfg.Driver)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
