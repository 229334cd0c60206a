// Package config loads and validates the OmniDrive server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (OMNIDRIVE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// Each database implementation defines its own options section. The
// Database struct contains type-specific sections (database.memory,
// database.badger) and only the section matching the selected type is
// used.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete OmniDrive configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Database selects how namespace nodes and upload sessions persist
	Database DatabaseConfig `mapstructure:"database"`

	// Upload tunes the chunked upload pipeline
	Upload UploadConfig `mapstructure:"upload"`

	// Workspace holds workspace-wide behavior switches
	Workspace WorkspaceConfig `mapstructure:"workspace"`

	// Providers declares storage backends available at startup. Backends
	// can also be added at runtime through the API.
	Providers []ProviderConfig `mapstructure:"providers" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the host:port the API binds to
	ListenAddress string `mapstructure:"listen_address" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MetricsEnabled exposes Prometheus metrics on /metrics
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// DatabaseConfig selects the persistence layer.
type DatabaseConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// UploadConfig tunes the chunked upload pipeline.
type UploadConfig struct {
	// SpoolDir holds relay staging files
	SpoolDir string `mapstructure:"spool_dir" validate:"required"`

	// ChunkSize is the default chunk size in bytes
	ChunkSize int64 `mapstructure:"chunk_size" validate:"gt=0"`

	// SessionTTL bounds how long an abandoned session is kept
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"gt=0"`

	// JanitorInterval is how often expired sessions are swept
	JanitorInterval time.Duration `mapstructure:"janitor_interval" validate:"gt=0"`

	// DefaultProvider receives files no routing rule claims (optional)
	DefaultProvider string `mapstructure:"default_provider"`
}

// WorkspaceConfig holds workspace-wide behavior switches.
type WorkspaceConfig struct {
	// ID names the single workspace this server instance serves
	ID string `mapstructure:"id" validate:"required"`

	// SyncOperationsToProvider pushes namespace moves, renames, and
	// deletes to the owning backend. When false the virtual tree changes
	// alone and backend content stays where it is.
	SyncOperationsToProvider bool `mapstructure:"sync_operations_to_provider"`
}

// ProviderConfig declares one storage backend.
type ProviderConfig struct {
	// ID is the stable identifier rules and nodes reference
	ID string `mapstructure:"id" validate:"required"`

	// Type selects the adapter implementation (local, ftp, webdav, s3,
	// telegram)
	Type string `mapstructure:"type" validate:"required"`

	// Name is the display name
	Name string `mapstructure:"name"`

	// Disabled excludes the backend from routing without removing it
	Disabled bool `mapstructure:"disabled"`

	// Options carries the adapter's type-specific settings, validated
	// against the backend's registered schema
	Options map[string]any `mapstructure:"options"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file search.
func setupViper(v *viper.Viper, configPath string) {
	// Example: OMNIDRIVE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("OMNIDRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is fine when no explicit path was given: defaults plus environment
// variables are a complete configuration.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configPath == "" {
			return nil
		}
		if configPath != "" {
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				return fmt.Errorf("config file not found: %s", configPath)
			}
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/omnidrive (or ~/.config/omnidrive).
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "omnidrive")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "omnidrive")
}
