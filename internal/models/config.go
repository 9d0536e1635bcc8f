package models

// ConfigError represents a configuration validation failure.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

type Config struct {
	LogLevel      string         `json:"logLevel"`
	RetentionDays int            `json:"retentionDays"`
	Server        ServerConfig   `json:"server"`
	Database      DatabaseConfig `json:"database"`
	Provider      ProviderConfig `json:"provider"`
	Media         MediaConfig    `json:"media"`
	Storage       StorageConfig  `json:"storage"`
	Dedup         DedupConfig    `json:"dedup"`
	Retry         RetryConfig    `json:"retry"`
	Tracing       TracingConfig  `json:"tracing"`
}

type ServerConfig struct {
	Port                 int `json:"port"`
	ReadTimeoutSec       int `json:"readTimeoutSec"`
	WriteTimeoutSec      int `json:"writeTimeoutSec"`
	IdleTimeoutSec       int `json:"idleTimeoutSec"`
	CleanupIntervalHours int `json:"cleanupIntervalHours"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

// ProviderConfig points at the messaging provider's read APIs (profile
// pictures, base64 media). The API key comes from the environment, never
// from the config file.
type ProviderConfig struct {
	Name       string `json:"name"`
	BaseURL    string `json:"baseUrl"`
	APIKey     string `json:"-"`
	TimeoutSec int    `json:"timeoutSec"`
}

type MediaConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

// StorageConfig selects the media object store. Backend is "s3" or "local".
type StorageConfig struct {
	Backend       string `json:"backend"`
	LocalDir      string `json:"localDir"`
	S3Bucket      string `json:"s3Bucket"`
	S3Region      string `json:"s3Region"`
	S3Endpoint    string `json:"s3Endpoint"`
	S3PathStyle   bool   `json:"s3PathStyle"`
	S3AccessKey   string `json:"-"`
	S3SecretKey   string `json:"-"`
	PublicBaseURL string `json:"publicBaseUrl"`
}

type DedupConfig struct {
	TTLSec     int `json:"ttlSec"`
	MaxEntries int `json:"maxEntries"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}
