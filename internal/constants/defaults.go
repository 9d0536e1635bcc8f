package constants

// Server defaults
const (
	DefaultServerPort          = 8082
	DefaultReadTimeoutSec      = 15
	DefaultWriteTimeoutSec     = 15
	DefaultIdleTimeoutSec      = 60
	DefaultGracefulShutdownSec = 30
	ServerErrorChannelSize     = 1

	// MaxWebhookBodyBytes caps the request body we are willing to buffer for
	// one provider call.
	MaxWebhookBodyBytes = 5 * 1024 * 1024
)

// Database defaults
const (
	DefaultDatabaseRetryAttempts = 5
	DefaultRetryBackoffMs        = 100
	DefaultMaxBackoffMs          = 5000
)

// Provider API defaults
const (
	DefaultProviderTimeoutSec    = 30
	DefaultAvatarFetchTimeoutSec = 10

	// Media endpoint circuit breaker
	DefaultMediaBreakerFailures   = 5
	DefaultMediaBreakerCooldownSec = 60
)

// Ingestion defaults
const (
	// MinPhoneDigits is the minimum number of digits an address must carry to
	// be usable as a contact key.
	MinPhoneDigits = 8

	// GroupJidSuffix marks a group thread in the provider's address scheme.
	GroupJidSuffix = "@g.us"

	DefaultMediaWorkers   = 4
	DefaultMediaQueueSize = 256

	DefaultDedupTTLSec      = 60
	DefaultDedupMaxEntries  = 4096

	DefaultEventRetentionDays = 30
	DefaultCleanupIntervalHours = 24
)

// API key derivation (workspace lookup hashes)
const (
	APIKeyHashIterations = 10000
	APIKeyHashBytes      = 32
)
