//go:build linux

package fat

import (
	"fmt"
	"io"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
	"golang.org/x/sys/unix"
)

// RawDevice is a BlockDevice on a block special file such as an SD card reader.
type RawDevice struct {
	fd    int
	count uint32
}

// OpenRawDevice opens the block device at path.
func OpenRawDevice(path string, readOnly bool) (*RawDevice, error) {
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if readOnly {
		flags = unix.O_RDONLY | unix.O_CLOEXEC
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, checkpoint.Wrapf(err, "open %s", path)
	}

	size, err := unix.Seek(fd, 0, io.SeekEnd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, checkpoint.Wrapf(err, "size of %s", path)
	}

	return &RawDevice{
		fd:    fd,
		count: uint32(size / SectorSize),
	}, nil
}

// SectorCount returns the size of the device in sectors.
func (d *RawDevice) SectorCount() uint32 {
	return d.count
}

func (d *RawDevice) ReadSector(addr uint32, buf []byte) error {
	if err := checkTransfer(addr, d.count, buf); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(addr)*SectorSize)
	if err == nil && n != SectorSize {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("%w: read %d bytes of sector %d", ErrShortTransfer, n, addr))
	}
	return nil
}

func (d *RawDevice) WriteSector(addr uint32, buf []byte) error {
	if err := checkTransfer(addr, d.count, buf); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, buf, int64(addr)*SectorSize)
	if err == nil && n != SectorSize {
		err = io.ErrShortWrite
	}
	if err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("%w: wrote %d bytes of sector %d", ErrShortTransfer, n, addr))
	}
	return nil
}

// Close syncs and closes the device.
func (d *RawDevice) Close() error {
	if err := unix.Fsync(d.fd); err != nil {
		_ = unix.Close(d.fd)
		return checkpoint.From(err)
	}
	return checkpoint.From(unix.Close(d.fd))
}
