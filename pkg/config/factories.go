package config

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/mapstructure"

	"github.com/omnidrive/omnidrive/pkg/namespace"
	nsbadger "github.com/omnidrive/omnidrive/pkg/namespace/badger"
	nsmemory "github.com/omnidrive/omnidrive/pkg/namespace/memory"
	"github.com/omnidrive/omnidrive/pkg/upload"
)

// badgerOptions is the badger database section, decoded from the loosely
// typed config map.
type badgerOptions struct {
	Dir string `mapstructure:"dir"`
}

// NewNamespaceStore creates the namespace store selected by the
// configuration.
func NewNamespaceStore(cfg *DatabaseConfig) (namespace.Store, error) {
	switch cfg.Type {
	case "memory":
		return nsmemory.NewStore(), nil

	case "badger":
		var opts badgerOptions
		if err := mapstructure.Decode(cfg.Badger, &opts); err != nil {
			return nil, fmt.Errorf("invalid badger database options: %w", err)
		}
		return nsbadger.NewStore(nsbadger.Options{Dir: filepath.Join(opts.Dir, "namespace")})

	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}
}

// NewSessionStore creates the upload session store selected by the
// configuration. Both stores share the badger directory, each under its
// own subdirectory.
func NewSessionStore(cfg *DatabaseConfig) (upload.SessionStore, error) {
	switch cfg.Type {
	case "memory":
		return upload.NewMemorySessionStore(), nil

	case "badger":
		var opts badgerOptions
		if err := mapstructure.Decode(cfg.Badger, &opts); err != nil {
			return nil, fmt.Errorf("invalid badger database options: %w", err)
		}
		return upload.NewBadgerSessionStore(filepath.Join(opts.Dir, "sessions"))

	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}
}
