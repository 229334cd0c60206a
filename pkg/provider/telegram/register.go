package telegram

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
			{Name: "bot_token", Label: "Bot token", Type: registry.FieldPassword, Required: true, Sensitive: true,
				Description: "Token issued by @BotFather"},
			{Name: "chat_id", Label: "Chat ID", Type: registry.FieldNumber, Required: true,
				Description: "Channel or supergroup the bot stores files in"},
		},
		Capabilities: provider.Capabilities{
			SupportsDirectUpload: false,
			SupportsFolders:      true,
			SupportsResume:       false,
			AuthType:             provider.AuthAPIKey,
		},
	})
}

func createAdapter(ctx context.Context, options map[string]any) (provider.Adapter, error) {
	type telegramOptions struct {
		BotToken string `mapstructure:"bot_token"`
		ChatID   int64  `mapstructure:"chat_id"`
	}

	var opts telegramOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig,
			fmt.Sprintf("failed to decode options: %v", err), err)
	}

	return New(Config{BotToken: opts.BotToken, ChatID: opts.ChatID})
}
