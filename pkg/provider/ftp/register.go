package ftp

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
			{Name: "host", Label: "Host", Type: registry.FieldText, Required: true, Placeholder: "ftp.example.com"},
			{Name: "port", Label: "Port", Type: registry.FieldNumber, Description: "Defaults to 21"},
			{Name: "username", Label: "Username", Type: registry.FieldText, Required: true},
			{Name: "password", Label: "Password", Type: registry.FieldPassword, Sensitive: true},
			{Name: "root", Label: "Root path", Type: registry.FieldText, Description: "Directory on the server used as storage root"},
			{Name: "explicit_tls", Label: "Use FTPS (explicit TLS)", Type: registry.FieldBoolean},
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
	type ftpOptions struct {
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		Root        string `mapstructure:"root"`
		ExplicitTLS bool   `mapstructure:"explicit_tls"`
	}

	var opts ftpOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig,
			fmt.Sprintf("failed to decode options: %v", err), err)
	}

	return New(Config{
		Host:        opts.Host,
		Port:        opts.Port,
		Username:    opts.Username,
		Password:    opts.Password,
		Root:        opts.Root,
		ExplicitTLS: opts.ExplicitTLS,
	})
}
