package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the configuration using struct tags plus custom rules
// that cannot be expressed declaratively.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	// Exactly one user source must be configured.
	sources := 0
	if cfg.Users.File != "" {
		sources++
	}
	if cfg.Users.JSON != "" {
		sources++
	}
	if cfg.Users.AdminPassword != "" {
		sources++
	}
	if sources == 0 {
		return fmt.Errorf("users: one of USERS_FILE, USERS_JSON, or ADMIN_PASSWORD is required")
	}
	if sources > 1 {
		return fmt.Errorf("users: USERS_FILE, USERS_JSON, and ADMIN_PASSWORD are mutually exclusive")
	}

	if cfg.Session.RotateWithin >= cfg.Session.TTL {
		return fmt.Errorf("session: rotate_within must be shorter than ttl")
	}

	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
