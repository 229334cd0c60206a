package local

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/provider/registry"
)

func init() {
	registry.Register(&registry.Descriptor{
		Type:    backendType,
		Factory: createAdapter,
		Schema: []registry.ConfigField{
			{
				Name:        "root",
				Label:       "Root directory",
				Type:        registry.FieldText,
				Required:    true,
				Description: "Server directory that stores this provider's files",
				Placeholder: "/var/lib/omnidrive/files",
			},
		},
		Capabilities: provider.Capabilities{
			SupportsDirectUpload: false,
			SupportsFolders:      true,
			SupportsResume:       false,
			AuthType:             provider.AuthNone,
		},
	})
}

func createAdapter(ctx context.Context, options map[string]any) (provider.Adapter, error) {
	type localOptions struct {
		Root string `mapstructure:"root"`
	}

	var opts localOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig,
			fmt.Sprintf("failed to decode options: %v", err), err)
	}

	return New(ctx, opts.Root)
}
