package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wainbox/internal/constants"
	"wainbox/internal/models"
)

var (
	ErrMissingProviderURL = models.ConfigError{Message: "missing provider base URL"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads the JSON config file, applies defaults and environment
// overrides, then validates the result. Secrets (provider API key, S3
// credentials) only ever come from the environment.
func LoadConfig(path string) (*models.Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfigPath(path string) error {
	if path == "" {
		return models.ConfigError{Message: "empty config path"}
	}
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return models.ConfigError{Message: "config path must not traverse directories"}
	}
	return nil
}

func validate(c *models.Config) error {
	if c.Provider.BaseURL == "" {
		return ErrMissingProviderURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Provider.Name == "" {
		c.Provider.Name = "evolution"
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = constants.DefaultProviderTimeoutSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultIdleTimeoutSec
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}

	if c.Media.Workers <= 0 {
		c.Media.Workers = constants.DefaultMediaWorkers
	}
	if c.Media.QueueSize <= 0 {
		c.Media.QueueSize = constants.DefaultMediaQueueSize
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return models.ConfigError{Message: "storage.localDir is required for the local backend"}
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return models.ConfigError{Message: "storage.s3Bucket is required for the s3 backend"}
		}
		if c.Storage.S3Region == "" {
			return models.ConfigError{Message: "storage.s3Region is required for the s3 backend"}
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown storage backend: %s", c.Storage.Backend)}
	}

	if c.Dedup.TTLSec <= 0 {
		c.Dedup.TTLSec = constants.DefaultDedupTTLSec
	}
	if c.Dedup.MaxEntries <= 0 {
		c.Dedup.MaxEntries = constants.DefaultDedupMaxEntries
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultEventRetentionDays
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WAINBOX_PROVIDER_URL"); url != "" {
		c.Provider.BaseURL = url
	}
	if key := os.Getenv("WAINBOX_PROVIDER_API_KEY"); key != "" {
		c.Provider.APIKey = key
	}
	if path := os.Getenv("WAINBOX_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("WAINBOX_MEDIA_DIR"); dir != "" {
		c.Storage.LocalDir = dir
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		c.Storage.S3AccessKey = key
	}
	if key := os.Getenv("AWS_SECRET_ACCESS_KEY"); key != "" {
		c.Storage.S3SecretKey = key
	}
}

// validateSecurity enforces the stricter rules that apply when running in
// production mode.
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("WAINBOX_ENV") == "production"

	if isProduction {
		if c.Provider.APIKey == "" {
			return models.ConfigError{Message: "provider API key is required in production (set WAINBOX_PROVIDER_API_KEY environment variable)"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production"}
		}
	} else {
		if c.Provider.APIKey == "" {
			fmt.Fprintf(os.Stderr, "WARNING: provider API key not set. Media and avatar fetches will fail. Set WAINBOX_PROVIDER_API_KEY.\n")
		}
	}

	return nil
}
