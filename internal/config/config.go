package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/Dumbogiflen/Manifest-system/internal/constants"
	"github.com/Dumbogiflen/Manifest-system/internal/models"
)

var (
	ErrMissingBrokerURL = models.ConfigError{Message: "missing broker URL"}
	ErrMissingDBPath    = models.ConfigError{Message: "missing database path for sqlite backend"}
)

// LoadConfig reads the JSON config file, fills defaults, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = constants.DefaultStaticDir
	}
	if c.Broker.TopicPrefix == "" {
		c.Broker.TopicPrefix = constants.DefaultTopicPrefix
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = constants.DefaultStorageBackend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = constants.DefaultDatabasePath
	}
	if c.Retention.MessageLimit <= 0 {
		c.Retention.MessageLimit = constants.DefaultMessageLimit
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultInitialBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("BROKER_URL"); url != "" {
		c.Broker.URL = url
	}
	// Broker credentials come from the environment, never the file
	if user := os.Getenv("BROKER_USERNAME"); user != "" {
		c.Broker.Username = user
	}
	if pass := os.Getenv("BROKER_PASSWORD"); pass != "" {
		c.Broker.Password = pass
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Storage.Path = path
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

func validate(c *models.Config) error {
	if c.Broker.URL == "" {
		return ErrMissingBrokerURL
	}

	switch c.Storage.Backend {
	case constants.StorageBackendSQLite:
		if c.Storage.Path == "" {
			return ErrMissingDBPath
		}
	case constants.StorageBackendMemory:
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown storage backend: %s", c.Storage.Backend)}
	}

	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "retry max_backoff_ms must not be below initial_backoff_ms"}
	}

	return nil
}
