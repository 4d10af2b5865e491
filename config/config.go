// Package config holds the environment-driven configuration for the bounty
// mirror service.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See the domain config files for the
// available variables:
//   - chain.go: chain RPC and contract configuration
//   - archive.go: archival sweeper and pin service configuration
//   - store.go: snapshot store and cache configuration
//   - services.go: service mode configuration
//   - observability.go: metrics configuration
package config

import (
	"strings"
)

// AppConfig is the main application configuration struct composed from the
// domain-specific configuration files.
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed
	// validation of the pin service credential).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Chain configuration (RPC endpoint, contracts, sync cadence).
	Chain ChainConfig

	// Metadata fetcher configuration.
	Metadata MetadataConfig

	// Archival sweeper and pin service configuration.
	Archive ArchiveConfig

	// Snapshot store configuration.
	Store StoreConfig

	// Redis cache configuration.
	Redis RedisConfig `envPrefix:"REDIS_"`

	// Services is a comma-delimited list of enabled services.
	Services string `env:"SERVICES" envDefault:"sync,archive"`

	// Observability configuration.
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// Call after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Chain.Sanitize()
	c.Metadata.Sanitize()
	c.Archive.Sanitize()
	c.Store.Sanitize()
	c.Observability.Sanitize()

	c.Chain.ContractAddress = strings.ToLower(strings.TrimSpace(c.Chain.ContractAddress))
	c.Chain.EvaluationContractAddress = strings.ToLower(strings.TrimSpace(c.Chain.EvaluationContractAddress))
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsSyncEnabled returns true if the reconciler service is enabled.
func (c *AppConfig) IsSyncEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeSync]
}

// IsArchiveEnabled returns true if the archival sweeper is enabled.
func (c *AppConfig) IsArchiveEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeArchive]
}
