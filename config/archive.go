package config

import (
	"time"
)

// ArchiveConfig contains archival sweeper and pin service configuration.
type ArchiveConfig struct {
	// PinServiceURL is the base URL of the pinning API.
	PinServiceURL string `env:"PIN_SERVICE_URL" envDefault:"https://api.pinata.cloud"`

	// PinServiceToken is the bearer credential for the pinning API.
	PinServiceToken string `env:"PIN_SERVICE_TOKEN"`

	// TTLDays is the baseline retention window measured from bounty close.
	TTLDays int `env:"ARCHIVE_TTL_DAYS" envDefault:"30"`

	// AfterRetrievalDays is the retention window once the poster retrieved
	// the content.
	AfterRetrievalDays int `env:"ARCHIVE_AFTER_RETRIEVAL_DAYS" envDefault:"7"`

	// VerifyIntervalHours is the minimum spacing between pin verifications
	// for one CID.
	VerifyIntervalHours int `env:"PIN_VERIFY_INTERVAL_HOURS" envDefault:"1"`

	// RateLimitMS is the minimum delay between pin API calls during a sweep.
	RateLimitMS int `env:"VERIFICATION_RATE_LIMIT_MS" envDefault:"250"`

	// RequestTimeout bounds each pin API request.
	RequestTimeout time.Duration `env:"PIN_REQUEST_TIMEOUT" envDefault:"20s"`
}

// TTL returns the baseline retention window as a duration.
func (a *ArchiveConfig) TTL() time.Duration {
	return time.Duration(a.TTLDays) * 24 * time.Hour
}

// AfterRetrievalTTL returns the post-retrieval retention window as a duration.
func (a *ArchiveConfig) AfterRetrievalTTL() time.Duration {
	return time.Duration(a.AfterRetrievalDays) * 24 * time.Hour
}

// VerifyInterval returns the per-CID verification spacing as a duration.
func (a *ArchiveConfig) VerifyInterval() time.Duration {
	return time.Duration(a.VerifyIntervalHours) * time.Hour
}

// RateLimit returns the inter-call throttle as a duration.
func (a *ArchiveConfig) RateLimit() time.Duration {
	return time.Duration(a.RateLimitMS) * time.Millisecond
}

// Sanitize applies guardrails to archive configuration values.
func (a *ArchiveConfig) Sanitize() {
	if a.TTLDays < 1 {
		a.TTLDays = 30
	}
	if a.AfterRetrievalDays < 1 {
		a.AfterRetrievalDays = 7
	}
	if a.VerifyIntervalHours < 1 {
		a.VerifyIntervalHours = 1
	}
	if a.RateLimitMS < 0 {
		a.RateLimitMS = 250
	}
	if a.RequestTimeout < time.Second {
		a.RequestTimeout = 20 * time.Second
	}
}
