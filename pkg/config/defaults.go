package config

import (
	"strings"
	"time"

	"github.com/omnidrive/omnidrive/pkg/upload"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyUploadDefaults(&cfg.Upload)
	applyWorkspaceDefaults(&cfg.Workspace)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Type == "badger" {
		if cfg.Badger == nil {
			cfg.Badger = map[string]any{}
		}
		if _, ok := cfg.Badger["dir"]; !ok {
			cfg.Badger["dir"] = "/var/lib/omnidrive/db"
		}
	}
}

func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = "/var/lib/omnidrive/spool"
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = upload.DefaultChunkSize
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = upload.DefaultSessionTTL
	}
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = upload.DefaultJanitorInterval
	}
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.ID == "" {
		cfg.ID = "default"
	}
}
