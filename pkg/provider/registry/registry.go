// Package registry maps backend-type tags to adapter factories, their
// configuration schemas and their capability descriptors.
//
// Adapter packages self-register from init(), so importing an adapter
// package (usually blank-imported by the binary) is what makes a backend
// type available:
//
//	import (
//	    _ "github.com/omnidrive/omnidrive/pkg/provider/local"
//	    _ "github.com/omnidrive/omnidrive/pkg/provider/s3"
//	)
//
// The registry is the single source of truth for capabilities: the upload
// orchestrator asks it whether a backend supports direct upload, and
// configuration surfaces ask it which fields a backend needs and which of
// them are sensitive (so the encryption-at-rest layer knows what to
// protect).
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

// Factory builds an adapter from a decoded option map. Factories validate
// configuration and fail fast (CodeConfig) before any connection attempt.
type Factory func(ctx context.Context, options map[string]any) (provider.Adapter, error)

// Descriptor is everything the registry knows about one backend type.
type Descriptor struct {
	// Type is the backend-type tag ("local", "ftp", "webdav", "s3",
	// "telegram").
	Type string

	// Factory constructs adapter instances.
	Factory Factory

	// Schema lists the configuration fields the backend requires.
	Schema []ConfigField

	// Capabilities is the static capability declaration.
	Capabilities provider.Capabilities
}

// SensitiveFields returns the names of schema fields flagged sensitive.
func (d *Descriptor) SensitiveFields() []string {
	var names []string
	for _, f := range d.Schema {
		if f.Sensitive {
			names = append(names, f.Name)
		}
	}
	return names
}

var (
	mu       sync.RWMutex
	backends = make(map[string]*Descriptor)
)

// Register adds a backend type. Called from adapter package init();
// duplicate or incomplete registrations are programmer errors and panic.
func Register(d *Descriptor) {
	if d == nil || d.Type == "" || d.Factory == nil {
		panic("registry: incomplete backend descriptor")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := backends[d.Type]; exists {
		panic(fmt.Sprintf("registry: backend type %q already registered", d.Type))
	}
	backends[d.Type] = d
}

// Lookup returns the descriptor for a backend type.
func Lookup(backendType string) (*Descriptor, error) {
	mu.RLock()
	defer mu.RUnlock()

	d, ok := backends[backendType]
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %q", backendType)
	}
	return d, nil
}

// Capabilities returns the capability descriptor for a backend type.
func Capabilities(backendType string) (provider.Capabilities, error) {
	d, err := Lookup(backendType)
	if err != nil {
		return provider.Capabilities{}, err
	}
	return d.Capabilities, nil
}

// NewAdapter validates options against the schema and builds an adapter.
func NewAdapter(ctx context.Context, backendType string, options map[string]any) (provider.Adapter, error) {
	d, err := Lookup(backendType)
	if err != nil {
		return nil, err
	}

	if err := ValidateOptions(d.Schema, options); err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, err.Error(), err)
	}

	return d.Factory(ctx, options)
}

// Types returns all registered backend types, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(backends))
	for t := range backends {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
