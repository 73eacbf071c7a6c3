package main

import (
	"fmt"

	"github.com/parallaxinc/PropWare-sub000/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// settings is loaded once per invocation before any sub-command runs.
var settings *config.Config

// infoFormatter prints info entries as plain lines, everything else through the text formatter.
type infoFormatter struct {
	fallback log.Formatter
}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return f.fallback.Format(entry)
}

func setupLogging(cfg config.LoggingConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&infoFormatter{fallback: &log.TextFormatter{}})
	}
	return nil
}

func newCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:               "propfat",
		Short:             "work with FAT16 and FAT32 volumes",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := setupLogging(cfg.Logging); err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
			}
			settings = cfg
			log.WithField("config", configPath).Debug("configuration loaded")
			return nil
		},
	}

	cmd.AddCommand(mkfsCmd())
	cmd.AddCommand(infoCmd())
	cmd.AddCommand(lsCmd())
	cmd.AddCommand(catCmd())
	cmd.AddCommand(putCmd())
	cmd.AddCommand(rmCmd())
	cmd.AddCommand(mkdirCmd())

	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", fmt.Sprintf("Configuration file (default %s)", config.DefaultConfigPath()))
	flags.StringP("device", "d", "", "Disk image, or block device with --raw")
	flags.Bool("raw", false, "Open the device as a block device")
	flags.Int64("offset", 0, "Byte offset of sector 0 within the image")
	flags.Uint32("sectors", 0, "Number of sectors to use (default: the whole image)")
	flags.Bool("read-only", false, "Mount the volume read-only")
	flags.String("log-level", "", "Log level: trace, debug, info, warn or error (default info)")
	flags.String("log-format", "", "Log format: text or json (default text)")
	flags.BoolP("verbose", "v", false, "Log every failed file system operation")

	return cmd
}
