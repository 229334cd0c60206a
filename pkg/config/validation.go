package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/omnidrive/omnidrive/pkg/provider/registry"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags plus custom
// rules that tags cannot express: provider types must be registered,
// provider ids must be unique, and each provider's options must satisfy
// the backend's schema.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	ids := make(map[string]bool)
	for i, p := range cfg.Providers {
		if ids[p.ID] {
			return fmt.Errorf("providers[%d]: duplicate provider id %q", i, p.ID)
		}
		ids[p.ID] = true

		descriptor, err := registry.Lookup(p.Type)
		if err != nil {
			return fmt.Errorf("providers[%d] (%s): unknown backend type %q (known: %s)",
				i, p.ID, p.Type, strings.Join(registry.Types(), ", "))
		}
		if err := registry.ValidateOptions(descriptor.Schema, p.Options); err != nil {
			return fmt.Errorf("providers[%d] (%s): %w", i, p.ID, err)
		}
	}

	if cfg.Upload.DefaultProvider != "" && !ids[cfg.Upload.DefaultProvider] {
		return fmt.Errorf("upload.default_provider: %q is not a configured provider", cfg.Upload.DefaultProvider)
	}
	return nil
}

// formatValidationError turns validator's error soup into one readable
// line per failed field.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var msgs []string
	for _, fieldErr := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q validation",
			strings.ToLower(fieldErr.Namespace()), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
