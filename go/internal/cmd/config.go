package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the hub server settings read from YAML. Environment
// variables override the datastore pieces (see dbconfig).
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Hub struct {
		// SnapshotBackend selects where session resume state lives:
		// "redis" or "memory".
		SnapshotBackend string `yaml:"snapshot_backend"`
		SnapshotTTL     string `yaml:"snapshot_ttl"`
		// OutboxEnabled turns on the Postgres outbox feed. Requires a
		// reachable database.
		OutboxEnabled bool `yaml:"outbox_enabled"`
	} `yaml:"hub"`
}

func defaultConfig() *Config {
	config := &Config{}
	config.Server.Port = "8080"
	config.Server.AllowedOrigins = []string{"*"}
	config.Hub.SnapshotBackend = "redis"
	config.Hub.SnapshotTTL = "24h"
	return config
}

// SnapshotTTL parses the configured snapshot expiry, falling back to a day.
func (c *Config) SnapshotTTL() time.Duration {
	d, err := time.ParseDuration(c.Hub.SnapshotTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML config at path. A missing file is not an error;
// the defaults serve a local single-node hub.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}
