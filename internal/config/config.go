// Package config loads the settings of the propfat command line tool.
//
// Sources, highest priority first:
//  1. command line flags
//  2. environment variables (PROPFAT_*)
//  3. the configuration file (YAML)
//  4. defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the complete tool configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Device  DeviceConfig  `mapstructure:"device"`
	Mkfs    MkfsConfig    `mapstructure:"mkfs"`

	// Output selects how info prints the geometry: text, yaml or json.
	Output string `mapstructure:"output" validate:"required,oneof=text yaml json"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error (normalized to lower case).
	Level string `mapstructure:"level" validate:"required,oneof=trace debug info warn error"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Verbose logs every failed driver operation with a description.
	Verbose bool `mapstructure:"verbose"`
}

// DeviceConfig selects the block device holding the volume.
type DeviceConfig struct {
	// Path is an image file, or a block device if Raw is set.
	Path string `mapstructure:"path" validate:"required"`

	// Raw opens Path as a block device instead of an image file.
	Raw bool `mapstructure:"raw"`

	// Offset is the byte position of sector 0 within an image file.
	Offset int64 `mapstructure:"offset" validate:"gte=0"`

	// Sectors limits the device size. 0 uses the whole image.
	Sectors uint32 `mapstructure:"sectors"`

	ReadOnly bool `mapstructure:"read_only"`
}

// MkfsConfig holds the formatter settings.
type MkfsConfig struct {
	// Type is fat16 or fat32 (normalized to lower case).
	Type string `mapstructure:"type" validate:"required,oneof=fat16 fat32"`

	// Size of a new image, like "64MiB". Empty keeps the current size.
	Size string `mapstructure:"size"`

	SectorsPerCluster uint8  `mapstructure:"sectors_per_cluster" validate:"omitempty,oneof=1 2 4 8 16 32 64 128"`
	RootEntries       uint16 `mapstructure:"root_entries" validate:"omitempty,min=16"`
	ReservedSectors   uint16 `mapstructure:"reserved_sectors"`
	Label             string `mapstructure:"label" validate:"max=11"`
	PartitionStart    uint32 `mapstructure:"partition_start"`
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":           "logging.level",
	"log-format":          "logging.format",
	"verbose":             "logging.verbose",
	"device":              "device.path",
	"raw":                 "device.raw",
	"offset":              "device.offset",
	"sectors":             "device.sectors",
	"read-only":           "device.read_only",
	"type":                "mkfs.type",
	"size":                "mkfs.size",
	"sectors-per-cluster": "mkfs.sectors_per_cluster",
	"root-entries":        "mkfs.root_entries",
	"reserved-sectors":    "mkfs.reserved_sectors",
	"label":               "mkfs.label",
	"partition-start":     "mkfs.partition_start",
	"output":              "output",
}

// Load reads the configuration file at configPath (or the default location if empty),
// overlays environment variables and the flags of flags that are known keys, applies
// defaults and validates the result. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper registers every key so that environment variables are seen by Unmarshal.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("PROPFAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range flagKeys {
		v.SetDefault(key, nil)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile tolerates a missing configuration file.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// getConfigDir returns $XDG_CONFIG_HOME/propfat, ~/.config/propfat or ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "propfat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "propfat")
}

// DefaultConfigPath returns the file Load reads when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
