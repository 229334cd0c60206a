package webdav

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
			{Name: "url", Label: "Endpoint URL", Type: registry.FieldText, Required: true,
				Placeholder: "https://cloud.example.com/remote.php/dav/files/alice"},
			{Name: "username", Label: "Username", Type: registry.FieldText, Required: true},
			{Name: "password", Label: "Password", Type: registry.FieldPassword, Required: true, Sensitive: true,
				Description: "App password or account password"},
		},
		Capabilities: provider.Capabilities{
			SupportsDirectUpload: false,
			SupportsFolders:      true,
			SupportsResume:       false,
			AuthType:             provider.AuthBasic,
		},
	})
}

func createAdapter(ctx context.Context, options map[string]any) (provider.Adapter, error) {
	type webdavOptions struct {
		URL      string `mapstructure:"url"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	}

	var opts webdavOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig,
			fmt.Sprintf("failed to decode options: %v", err), err)
	}

	return New(Config{URL: opts.URL, Username: opts.Username, Password: opts.Password})
}
