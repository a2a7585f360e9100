package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all system-wide settings.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	Transport *TransportConfig `json:"transport"`
	Snapshot  *SnapshotConfig  `json:"snapshot"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// TransportConfig points at the remote switch. An empty URL runs the
// session offline against local state only.
type TransportConfig struct {
	URL         string        `json:"url"`
	JoinTimeout time.Duration `json:"join_timeout"`
}

type SnapshotConfig struct {
	Path string `json:"path"`
}

// DefaultConfig returns classroom-scale defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Enabled: true,
			Path:    "./data/classhub.db",
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Transport: &TransportConfig{
			URL:         "",
			JoinTimeout: 10 * time.Second,
		},
		Snapshot: &SnapshotConfig{
			Path: "./data/classhub.json",
		},
	}
}

// Load builds the configuration: defaults, then CLASSHUB_* environment
// variables, then the JSON file at path (when non-empty). A .env file in
// the working directory is folded into the environment first.
func Load(path string) (*Config, error) {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	config := DefaultConfig()
	config.applyEnv()

	if path != "" {
		if err := config.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.Transport == nil {
		return fmt.Errorf("transport configuration is required")
	}
	if c.Transport.JoinTimeout <= 0 {
		return fmt.Errorf("transport join timeout must be positive")
	}
	if c.Snapshot == nil || c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot path cannot be empty")
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CLASSHUB_DATABASE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Database.Enabled = enabled
		}
	}
	if v := os.Getenv("CLASSHUB_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CLASSHUB_HTTP_HOST"); v != "" {
		c.HTTP.Host = v
	}
	if v := os.Getenv("CLASSHUB_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("CLASSHUB_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("CLASSHUB_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.WriteTimeout = d
		}
	}
	if v := os.Getenv("CLASSHUB_TRANSPORT_URL"); v != "" {
		c.Transport.URL = v
	}
	if v := os.Getenv("CLASSHUB_TRANSPORT_JOIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Transport.JoinTimeout = d
		}
	}
	if v := os.Getenv("CLASSHUB_SNAPSHOT_PATH"); v != "" {
		c.Snapshot.Path = v
	}
}

// configFile mirrors Config with string durations so JSON stays readable.
type configFile struct {
	Database *struct {
		Enabled *bool  `json:"enabled"`
		Path    string `json:"path"`
	} `json:"database"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Transport *struct {
		URL         string `json:"url"`
		JoinTimeout string `json:"join_timeout"`
	} `json:"transport"`
	Snapshot *struct {
		Path string `json:"path"`
	} `json:"snapshot"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.Database != nil {
		if file.Database.Enabled != nil {
			c.Database.Enabled = *file.Database.Enabled
		}
		if file.Database.Path != "" {
			c.Database.Path = file.Database.Path
		}
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			c.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port != 0 {
			c.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.ReadTimeout != "" {
			d, err := time.ParseDuration(file.HTTP.ReadTimeout)
			if err != nil {
				return fmt.Errorf("invalid read_timeout: %w", err)
			}
			c.HTTP.ReadTimeout = d
		}
		if file.HTTP.WriteTimeout != "" {
			d, err := time.ParseDuration(file.HTTP.WriteTimeout)
			if err != nil {
				return fmt.Errorf("invalid write_timeout: %w", err)
			}
			c.HTTP.WriteTimeout = d
		}
	}
	if file.Transport != nil {
		if file.Transport.URL != "" {
			c.Transport.URL = file.Transport.URL
		}
		if file.Transport.JoinTimeout != "" {
			d, err := time.ParseDuration(file.Transport.JoinTimeout)
			if err != nil {
				return fmt.Errorf("invalid join_timeout: %w", err)
			}
			c.Transport.JoinTimeout = d
		}
	}
	if file.Snapshot != nil && file.Snapshot.Path != "" {
		c.Snapshot.Path = file.Snapshot.Path
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
