package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// sectorSize is the only sector size the driver supports.
const sectorSize = 512

// ApplyDefaults fills unset fields and normalizes case.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Mkfs.Type == "" {
		cfg.Mkfs.Type = "fat32"
	}
	cfg.Mkfs.Type = strings.ToLower(cfg.Mkfs.Type)

	if cfg.Output == "" {
		cfg.Output = "text"
	}
	cfg.Output = strings.ToLower(cfg.Output)
}

// Validate checks struct tags first, then the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Device.Offset%sectorSize != 0 {
		return fmt.Errorf("device.offset: %d is not a multiple of %d", cfg.Device.Offset, sectorSize)
	}
	if cfg.Device.Raw && cfg.Device.Offset != 0 {
		return fmt.Errorf("device.offset: not supported for raw devices, partitions are found through the MBR")
	}
	return nil
}

// formatValidationError reports the first failed field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
