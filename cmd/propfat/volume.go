package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	fat "github.com/parallaxinc/PropWare-sub000"
	"github.com/parallaxinc/PropWare-sub000/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// osFs opens image files. Tests swap it for an in-memory file system.
var osFs = afero.NewOsFs()

// device is an opened block device together with what has to be closed after use.
type device struct {
	fat.BlockDevice
	count uint32
	close func() error
}

func (d *device) Close() error {
	return d.close()
}

// openDevice opens the configured image or block device. A positive size creates or
// resizes an image file first.
func openDevice(cfg config.DeviceConfig, size int64) (*device, error) {
	if cfg.Raw {
		if size > 0 {
			return nil, errors.New("--size is only supported for image files")
		}
		raw, err := fat.OpenRawDevice(cfg.Path, cfg.ReadOnly)
		if err != nil {
			return nil, err
		}
		return &device{BlockDevice: raw, count: raw.SectorCount(), close: raw.Close}, nil
	}

	flag := os.O_RDWR
	if cfg.ReadOnly {
		flag = os.O_RDONLY
	}
	if size > 0 {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := osFs.OpenFile(cfg.Path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		if err := f.Truncate(cfg.Offset + size); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	count := cfg.Sectors
	if count == 0 {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if info.Size() <= cfg.Offset {
			_ = f.Close()
			return nil, fmt.Errorf("%s: image is smaller than the offset %d", cfg.Path, cfg.Offset)
		}
		count = uint32((info.Size() - cfg.Offset) / fat.SectorSize)
	}

	log.WithFields(log.Fields{
		"image":   cfg.Path,
		"offset":  cfg.Offset,
		"sectors": count,
	}).Debug("image opened")
	return &device{BlockDevice: fat.NewImageDevice(f, cfg.Offset, count), count: count, close: f.Close}, nil
}

// session is a mounted volume on an opened device.
type session struct {
	dev *device
	vol *fat.Volume
}

func mount(cfg *config.Config) (*session, error) {
	dev, err := openDevice(cfg.Device, 0)
	if err != nil {
		return nil, err
	}

	opts := []fat.Option{
		fat.WithLogger(log.StandardLogger()),
		fat.WithVerbose(cfg.Logging.Verbose),
	}
	if cfg.Device.ReadOnly {
		opts = append(opts, fat.ReadOnly())
	}
	vol, err := fat.Mount(dev, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return &session{dev: dev, vol: vol}, nil
}

// close unmounts the volume and closes the device. The first error wins.
func (s *session) close() error {
	err := s.vol.Unmount()
	if cerr := s.dev.Close(); err == nil {
		err = cerr
	}
	return err
}

// enter changes into the directories of p and returns its last element.
// An empty result means p named the root directory.
func enter(vol *fat.Volume, p string) (string, error) {
	if err := vol.Chdir("/"); err != nil {
		return "", err
	}
	parts := splitPath(p)
	if len(parts) == 0 {
		return "", nil
	}
	for _, dir := range parts[:len(parts)-1] {
		if err := vol.Chdir(dir); err != nil {
			return "", fmt.Errorf("%s: %w", p, err)
		}
	}
	return parts[len(parts)-1], nil
}

// splitPath accepts both slash styles and ignores empty elements.
func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}
