package config

import (
	"fmt"
	"strings"
)

// StoreDriver selects the snapshot store backend.
type StoreDriver string

const (
	// StoreDriverFile persists the snapshot as a JSON document on disk.
	StoreDriverFile StoreDriver = "file"
	// StoreDriverPostgres persists the snapshot as a single jsonb row.
	StoreDriverPostgres StoreDriver = "postgres"
)

// StoreConfig contains snapshot store configuration.
type StoreConfig struct {
	// Driver selects the backend: file or postgres.
	Driver StoreDriver `env:"STORE_DRIVER" envDefault:"file"`

	// Path is the snapshot document location for the file driver.
	Path string `env:"STORE_PATH" envDefault:"data/mirror.json"`

	// Postgres connection settings for the postgres driver.
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"bountymirror"`
	DBUser     string `env:"DB_USER" envDefault:"bountymirror"`
	DBPassword string `env:"DB_PASSWORD"`
	DBSSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
}

// DSN builds the Postgres connection string for the postgres driver.
func (s *StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		s.DBHost, s.DBPort, s.DBName, s.DBUser, s.DBPassword, s.DBSSLMode,
	)
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	driver := StoreDriver(strings.ToLower(strings.TrimSpace(string(s.Driver))))
	if driver != StoreDriverPostgres {
		driver = StoreDriverFile
	}
	s.Driver = driver
	if strings.TrimSpace(s.Path) == "" {
		s.Path = "data/mirror.json"
	}
}

// RedisConfig contains the optional redis cache configuration used by the
// metadata fetcher.
type RedisConfig struct {
	// Enabled turns the metadata cache on.
	Enabled bool `env:"ENABLED" envDefault:"false"`

	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Addr returns the host:port address for the redis client.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
