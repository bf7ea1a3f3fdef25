// Package config loads the daemon's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ServerConfig holds the daemon settings that can come from a config file.
// All fields are optional pointers so a partial file only overrides what it
// names; the Get* methods supply the defaults. Command-line flags still win
// over both.
type ServerConfig struct {
	Listen          *string `json:"listen,omitempty"`
	DBPath          *string `json:"db_path,omitempty"`
	VolumeDir       *string `json:"volume_dir,omitempty"`
	ShutdownTimeout *string `json:"shutdown_timeout,omitempty"` // duration string like "5s"
}

// Defaults applied when a field is absent from the config file.
const (
	DefaultListen          = ":8080"
	DefaultDBPath          = "history.db"
	DefaultShutdownTimeout = 5 * time.Second
)

// EmptyServerConfig returns a ServerConfig with all fields unset.
func EmptyServerConfig() *ServerConfig {
	return &ServerConfig{}
}

// GetListen returns the configured listen address or the default.
func (c *ServerConfig) GetListen() string {
	if c.Listen != nil && *c.Listen != "" {
		return *c.Listen
	}
	return DefaultListen
}

// GetDBPath returns the configured history database path or the default.
func (c *ServerConfig) GetDBPath() string {
	if c.DBPath != nil && *c.DBPath != "" {
		return *c.DBPath
	}
	return DefaultDBPath
}

// GetVolumeDir returns the directory scanned for volume files at startup.
// Empty means no volumes are preloaded.
func (c *ServerConfig) GetVolumeDir() string {
	if c.VolumeDir != nil {
		return *c.VolumeDir
	}
	return ""
}

// GetShutdownTimeout returns the graceful-shutdown deadline.
func (c *ServerConfig) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout != nil && *c.ShutdownTimeout != "" {
		if d, err := time.ParseDuration(*c.ShutdownTimeout); err == nil {
			return d
		}
	}
	return DefaultShutdownTimeout
}

// Validate checks that the configuration values are well formed.
func (c *ServerConfig) Validate() error {
	if c.ShutdownTimeout != nil && *c.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(*c.ShutdownTimeout); err != nil {
			return fmt.Errorf("invalid shutdown_timeout %q: %w", *c.ShutdownTimeout, err)
		}
	}
	return nil
}

// LoadServerConfig loads a ServerConfig from a JSON file. The file must have
// a .json extension and stay under the size cap. Fields omitted from the
// file retain their defaults, so partial configs are safe.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyServerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
