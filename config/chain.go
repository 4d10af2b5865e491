package config

import (
	"time"
)

// ChainConfig contains chain access and reconciler cadence configuration.
type ChainConfig struct {
	// RPCURL is the chain JSON-RPC endpoint.
	RPCURL string `env:"RPC_URL"`

	// ContractAddress is the authoritative bounty contract. Changing this
	// value marks all mirror jobs tagged with a different address as ORPHANED
	// on the next reconciler cycle.
	ContractAddress string `env:"CONTRACT_ADDRESS"`

	// EvaluationContractAddress is the secondary oracle contract queried for
	// pending submission verdicts.
	EvaluationContractAddress string `env:"EVALUATION_CONTRACT_ADDRESS"`

	// SyncIntervalMinutes is the reconciler cadence.
	SyncIntervalMinutes int `env:"SYNC_INTERVAL_MINUTES" envDefault:"2"`

	// MaxConsecutiveFailures disables the sync loop after this many failed
	// cycles in a row; a manual trigger re-enables it.
	MaxConsecutiveFailures int `env:"SYNC_MAX_CONSECUTIVE_FAILURES" envDefault:"5"`

	// ResolveScanWindow is how many bounty indices the slow-path resolver
	// scans backwards when a creating transaction cannot be located.
	ResolveScanWindow int64 `env:"RESOLVE_SCAN_WINDOW" envDefault:"300"`

	// CallTimeout bounds each individual RPC read.
	CallTimeout time.Duration `env:"CHAIN_CALL_TIMEOUT" envDefault:"30s"`
}

// SyncInterval returns the reconciler cadence as a duration.
func (c *ChainConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// Sanitize applies guardrails to chain configuration values.
func (c *ChainConfig) Sanitize() {
	if c.SyncIntervalMinutes < 1 {
		c.SyncIntervalMinutes = 1
	}
	if c.MaxConsecutiveFailures < 1 {
		c.MaxConsecutiveFailures = 5
	}
	if c.ResolveScanWindow < 1 {
		c.ResolveScanWindow = 300
	}
	if c.CallTimeout < time.Second {
		c.CallTimeout = 30 * time.Second
	}
}

// MetadataConfig contains metadata fetcher configuration.
type MetadataConfig struct {
	// Gateways is the ordered list of content gateways tried for each CID.
	Gateways []string `env:"IPFS_GATEWAYS" envSeparator:"," envDefault:"https://dweb.link,https://ipfs.io"`

	// GatewayTimeoutSeconds is the per-gateway request timeout.
	GatewayTimeoutSeconds int `env:"GATEWAY_TIMEOUT_SECONDS" envDefault:"15"`

	// SyntheticCIDPrefix flags development CIDs that were never uploaded;
	// fetches for them are skipped outright.
	SyntheticCIDPrefix string `env:"SYNTHETIC_CID_PREFIX" envDefault:"dev-"`

	// CacheTTL bounds how long extracted metadata is cached in redis.
	CacheTTL time.Duration `env:"METADATA_CACHE_TTL" envDefault:"24h"`
}

// GatewayTimeout returns the per-gateway timeout as a duration.
func (m *MetadataConfig) GatewayTimeout() time.Duration {
	return time.Duration(m.GatewayTimeoutSeconds) * time.Second
}

// Sanitize applies guardrails to metadata configuration values.
func (m *MetadataConfig) Sanitize() {
	if m.GatewayTimeoutSeconds < 1 {
		m.GatewayTimeoutSeconds = 15
	}
	if m.CacheTTL < time.Minute {
		m.CacheTTL = 24 * time.Hour
	}
}
