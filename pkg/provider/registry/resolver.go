package registry

import (
	"context"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

// ConfigResolver builds adapters from stored provider configurations.
// Adapters are constructed per call and owned by the caller (run them
// through provider.WithAdapter); backends keeping live connections do
// their own pooling behind the adapter.
type ConfigResolver struct {
	Configs provider.ConfigStore
}

func NewConfigResolver(configs provider.ConfigStore) *ConfigResolver {
	return &ConfigResolver{Configs: configs}
}

// Resolve looks up the configuration and instantiates its adapter.
// Disabled backends do not resolve: a disabled provider must be invisible
// to every operation, not just routing.
func (r *ConfigResolver) Resolve(ctx context.Context, workspaceID, providerID string) (provider.Adapter, error) {
	cfg, err := r.Configs.Get(ctx, workspaceID, providerID)
	if err != nil {
		return nil, err
	}
	if cfg.Disabled {
		return nil, provider.NewError(cfg.Type, "resolve", "", provider.CodeConfig,
			"provider is disabled", nil)
	}
	return NewAdapter(ctx, cfg.Type, cfg.Options)
}
