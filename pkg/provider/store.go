package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omnidrive/omnidrive/internal/logger"
)

// Config is a connected provider owned by a workspace. Options holds the
// backend-specific configuration validated against the registry schema;
// fields the schema marks sensitive are encrypted at rest by an external
// layer before they reach persistence.
type Config struct {
	ID          string
	WorkspaceID string

	// Type is the backend-type tag resolved through the registry.
	Type string

	// Name is the user-visible label for this connection.
	Name string

	Options map[string]any

	// Disabled soft-disables a provider (credential failure or explicit
	// deactivation) without losing its configuration.
	Disabled bool

	Deleted bool

	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt time.Time
}

// ConfigStore persists provider configurations.
type ConfigStore interface {
	Create(ctx context.Context, cfg *Config) error
	Get(ctx context.Context, workspaceID, id string) (*Config, error)
	List(ctx context.Context, workspaceID string) ([]*Config, error)
	Update(ctx context.Context, cfg *Config) error
	SetDisabled(ctx context.Context, workspaceID, id string, disabled bool) error
	SoftDelete(ctx context.Context, workspaceID, id string) error
	TouchLastUsed(ctx context.Context, workspaceID, id string, when time.Time) error
}

// ErrConfigNotFound is returned for missing or soft-deleted provider
// configurations.
var ErrConfigNotFound = fmt.Errorf("provider configuration not found")

// MemoryConfigStore is an in-memory ConfigStore for tests and single-node
// deployments.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*Config // key: workspaceID + "/" + id
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]*Config)}
}

func configKey(workspaceID, id string) string {
	return workspaceID + "/" + id
}

func (s *MemoryConfigStore) Create(ctx context.Context, cfg *Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := configKey(cfg.WorkspaceID, cfg.ID)
	if _, exists := s.configs[key]; exists {
		return fmt.Errorf("provider configuration %q already exists", cfg.ID)
	}

	now := time.Now()
	clone := *cfg
	clone.CreatedAt = now
	clone.UpdatedAt = now
	s.configs[key] = &clone
	return nil
}

func (s *MemoryConfigStore) Get(ctx context.Context, workspaceID, id string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[configKey(workspaceID, id)]
	if !ok || cfg.Deleted {
		return nil, ErrConfigNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (s *MemoryConfigStore) List(ctx context.Context, workspaceID string) ([]*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Config
	for _, cfg := range s.configs {
		if cfg.WorkspaceID != workspaceID || cfg.Deleted {
			continue
		}
		clone := *cfg
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryConfigStore) Update(ctx context.Context, cfg *Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := configKey(cfg.WorkspaceID, cfg.ID)
	existing, ok := s.configs[key]
	if !ok || existing.Deleted {
		return ErrConfigNotFound
	}

	clone := *cfg
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	s.configs[key] = &clone
	return nil
}

func (s *MemoryConfigStore) SetDisabled(ctx context.Context, workspaceID, id string, disabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[configKey(workspaceID, id)]
	if !ok || cfg.Deleted {
		return ErrConfigNotFound
	}
	cfg.Disabled = disabled
	cfg.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryConfigStore) SoftDelete(ctx context.Context, workspaceID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[configKey(workspaceID, id)]
	if !ok || cfg.Deleted {
		return ErrConfigNotFound
	}
	cfg.Deleted = true
	cfg.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryConfigStore) TouchLastUsed(ctx context.Context, workspaceID, id string, when time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[configKey(workspaceID, id)]
	if !ok || cfg.Deleted {
		return ErrConfigNotFound
	}
	cfg.LastUsedAt = when
	return nil
}

// TouchLastUsedAsync records provider usage without blocking the request
// path. Best-effort and non-guaranteed: failures are logged, never
// surfaced. The goroutine carries its own timeout rather than the request
// context so an aborted request still records usage.
func TouchLastUsedAsync(store ConfigStore, workspaceID, id string) {
	when := time.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.TouchLastUsed(ctx, workspaceID, id, when); err != nil {
			logger.Warn("failed to record last-used for provider %s: %v", id, err)
		}
	}()
}
