package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	fat "github.com/parallaxinc/PropWare-sub000"
	"github.com/parallaxinc/PropWare-sub000/format"
	"github.com/parallaxinc/PropWare-sub000/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func mkfsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkfs",
		Short: "create an empty FAT16 or FAT32 file system",
		Long: `Create an empty file system on the device. With --size an image file is
created or resized first. With --partition-start the volume is placed behind a
master boot record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := settings
			opts, err := formatOptions(cfg.Mkfs)
			if err != nil {
				return err
			}

			var size int64
			if cfg.Mkfs.Size != "" {
				n, err := humanize.ParseBytes(cfg.Mkfs.Size)
				if err != nil {
					return fmt.Errorf("invalid size %q: %w", cfg.Mkfs.Size, err)
				}
				size = int64(n) / fat.SectorSize * fat.SectorSize
			}
			if cfg.Device.ReadOnly {
				return fat.ErrReadOnly
			}

			dev, err := openDevice(cfg.Device, size)
			if err != nil {
				return err
			}
			layout, err := format.Format(dev, dev.count, opts)
			if cerr := dev.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			log.Infof("%s: %v, %s in %d clusters of %s",
				cfg.Device.Path, layout.Type,
				humanize.IBytes(uint64(layout.TotalSectors)*fat.SectorSize),
				layout.Clusters,
				humanize.IBytes(uint64(layout.SectorsPerCluster)*fat.SectorSize))
			log.WithFields(log.Fields{
				"fatSize":   layout.FATSize,
				"reserved":  layout.ReservedSectors,
				"volumeID":  fmt.Sprintf("%08X", layout.VolumeID),
				"partition": layout.PartitionStart,
			}).Debug("volume formatted")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("type", "t", "", "File system type: fat16 or fat32 (default fat32)")
	flags.StringP("size", "s", "", "Create or resize the image to this size, like 64MiB")
	flags.Uint8("sectors-per-cluster", 0, "Sectors per cluster (default: smallest possible)")
	flags.Uint16("root-entries", 0, "FAT16 root directory entries (default 512)")
	flags.Uint16("reserved-sectors", 0, "Reserved sectors (default 1 for FAT16, 32 for FAT32)")
	flags.StringP("label", "L", "", "Volume label, up to 11 characters")
	flags.Uint32("partition-start", 0, "Place the volume at this sector behind a partition table")

	return cmd
}

func formatOptions(cfg config.MkfsConfig) (format.Options, error) {
	t, err := format.ParseType(cfg.Type)
	if err != nil {
		return format.Options{}, err
	}
	return format.Options{
		Type:              t,
		SectorsPerCluster: cfg.SectorsPerCluster,
		RootEntries:       cfg.RootEntries,
		ReservedSectors:   cfg.ReservedSectors,
		Label:             cfg.Label,
		PartitionStart:    cfg.PartitionStart,
	}, nil
}
