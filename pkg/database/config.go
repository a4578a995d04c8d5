package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds database connection and pool settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// DatabaseURL, when set, takes precedence over the discrete fields.
	DatabaseURL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the connection string NewClient opens: DatabaseURL verbatim
// when set, otherwise a DSN built from the discrete fields.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LoadConfigFromEnv loads database configuration from environment variables.
// Recognizes both DATABASE_URL and the discrete DATABASE_HOST/PORT/USER/
// PASSWORD/NAME variables per spec section 6 (renamed from the teacher's
// DB_* names).
func LoadConfigFromEnv() (Config, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg := Config{
			DatabaseURL:     url,
			MaxOpenConns:    atoiDefault("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    atoiDefault("DATABASE_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: durationDefault("DATABASE_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: durationDefault("DATABASE_CONN_MAX_IDLE_TIME", 15*time.Minute),
		}
		return cfg, cfg.Validate()
	}

	port, err := strconv.Atoi(getEnvOrDefault("DATABASE_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DATABASE_PORT: %w", err)
	}

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("DATABASE_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DATABASE_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("DATABASE_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DATABASE_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg := Config{
		Host:            getEnvOrDefault("DATABASE_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DATABASE_USER", "krai"),
		Password:        os.Getenv("DATABASE_PASSWORD"),
		Database:        getEnvOrDefault("DATABASE_NAME", "krai"),
		SSLMode:         getEnvOrDefault("DATABASE_SSLMODE", "disable"),
		MaxOpenConns:    atoiDefault("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    atoiDefault("DATABASE_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.DatabaseURL != "" {
		return nil
	}
	if c.Password == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("DATABASE_MAX_IDLE_CONNS (%d) cannot exceed DATABASE_MAX_OPEN_CONNS (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("DATABASE_MAX_IDLE_CONNS cannot be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func atoiDefault(key string, defaultVal int) int {
	v, err := strconv.Atoi(getEnvOrDefault(key, strconv.Itoa(defaultVal)))
	if err != nil {
		return defaultVal
	}
	return v
}

func durationDefault(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultVal.String()))
	if err != nil {
		return defaultVal
	}
	return d
}
