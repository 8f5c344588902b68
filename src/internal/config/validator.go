package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	if c.Server == nil || c.Resolver == nil || c.API == nil || c.Firewall == nil {
		c.ApplyDefaults()
	}

	sections := []struct {
		name  string
		value interface{}
	}{
		{"server", c.Server},
		{"resolver", c.Resolver},
		{"api", c.API},
		{"firewall", c.Firewall},
	}

	for _, section := range sections {
		if err := validate.Struct(section.value); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, section.name)...)
		}
	}

	validationErrors = append(validationErrors, c.validateServer()...)

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

// validateServer checks rules spanning several server fields.
func (c *Config) validateServer() ValidationErrors {
	var validationErrors ValidationErrors

	s := c.Server
	if s.RestrictClients && len(s.AllowedClients) == 0 && s.AllowedClientsFile == "" {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "server.allowed_clients",
			Message:   "restrict_clients requires allowed_clients or allowed_clients_file",
		})
	}

	if !s.AllowAll && len(s.Whitelist) == 0 && s.WhitelistFile == "" {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "server.whitelist",
			Message:   "whitelist mode requires whitelist or whitelist_file (or set allow_all)",
		})
	}

	if c.Firewall.Enable && !s.RestrictClients {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "firewall.enable",
			Message:   "firewall enforcement requires server.restrict_clients",
		})
	}

	return validationErrors
}

// convertValidatorErrors converts go-playground/validator errors to our ValidationError format
func convertValidatorErrors(err error, fieldPrefix string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			fieldPath := fieldPrefix
			if e.Field() != "" {
				// e.Field() returns the TOML tag name because we registered TagNameFunc
				fieldPath = fmt.Sprintf("%s.%s", fieldPrefix, e.Field())
			}

			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
