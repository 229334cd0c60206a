package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/provider/registry"
)

func init() {
	registry.Register(&registry.Descriptor{
		Type:    backendType,
		Factory: createAdapter,
		Schema: []registry.ConfigField{
			{Name: "region", Label: "Region", Type: registry.FieldText, Required: true, Placeholder: "us-east-1"},
			{Name: "bucket", Label: "Bucket", Type: registry.FieldText, Required: true},
			{Name: "access_key_id", Label: "Access key ID", Type: registry.FieldText},
			{Name: "secret_access_key", Label: "Secret access key", Type: registry.FieldPassword, Sensitive: true},
			{Name: "endpoint", Label: "Custom endpoint", Type: registry.FieldText,
				Description: "For MinIO/Localstack; leave empty for AWS"},
			{Name: "key_prefix", Label: "Key prefix", Type: registry.FieldText,
				Description: "Store all objects under this prefix"},
		},
		Capabilities: provider.Capabilities{
			SupportsDirectUpload: true,
			SupportsFolders:      true,
			SupportsResume:       true,
			AuthType:             provider.AuthAPIKey,
		},
	})
}

func createAdapter(ctx context.Context, options map[string]any) (provider.Adapter, error) {
	type s3Options struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		Endpoint        string `mapstructure:"endpoint"`
		KeyPrefix       string `mapstructure:"key_prefix"`
	}

	var opts s3Options
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig,
			fmt.Sprintf("failed to decode options: %v", err), err)
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "failed to load AWS config", err)
	}

	client := awsS3.NewFromConfig(awsCfg, func(o *awsS3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// Path-style addressing for MinIO/Localstack compatibility.
			o.UsePathStyle = true
		}
	})

	return New(Config{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
}
