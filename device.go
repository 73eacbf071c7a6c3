package fat

import (
	"fmt"
	"io"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
)

// SectorSize is the only sector size the driver supports.
const SectorSize = 512

// BlockDevice transfers whole 512 byte sectors by absolute address.
// Both methods must be called with a buffer of exactly SectorSize bytes.
// The device does no caching of its own; the volume keeps at most two sectors in memory.
//
// Generated mock using mockgen:
//
//	mockgen -source=device.go -destination=device_mock_test.go -package fat
type BlockDevice interface {
	ReadSector(addr uint32, buf []byte) error
	WriteSector(addr uint32, buf []byte) error
}

// MemDevice is a sparse in-memory BlockDevice. Sectors never written read as zeros.
type MemDevice struct {
	count   uint32
	sectors map[uint32]*[SectorSize]byte
}

// NewMemDevice returns an empty device with count sectors.
func NewMemDevice(count uint32) *MemDevice {
	return &MemDevice{
		count:   count,
		sectors: make(map[uint32]*[SectorSize]byte),
	}
}

// SectorCount returns the size of the device in sectors.
func (d *MemDevice) SectorCount() uint32 {
	return d.count
}

// Written reports whether the sector at addr has ever been written.
func (d *MemDevice) Written(addr uint32) bool {
	_, ok := d.sectors[addr]
	return ok
}

func (d *MemDevice) ReadSector(addr uint32, buf []byte) error {
	if err := checkTransfer(addr, d.count, buf); err != nil {
		return err
	}
	if s, ok := d.sectors[addr]; ok {
		copy(buf, s[:])
		return nil
	}
	clear(buf)
	return nil
}

func (d *MemDevice) WriteSector(addr uint32, buf []byte) error {
	if err := checkTransfer(addr, d.count, buf); err != nil {
		return err
	}
	s, ok := d.sectors[addr]
	if !ok {
		s = new([SectorSize]byte)
		d.sectors[addr] = s
	}
	copy(s[:], buf)
	return nil
}

// ReaderWriterAt is the random access subset of a file needed by ImageDevice.
// *os.File and afero.File implement it.
type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// ImageDevice is a BlockDevice backed by a disk image.
type ImageDevice struct {
	image  ReaderWriterAt
	offset int64
	count  uint32
}

// NewImageDevice returns a device exposing count sectors of image, starting at the byte offset.
func NewImageDevice(image ReaderWriterAt, offset int64, count uint32) *ImageDevice {
	return &ImageDevice{
		image:  image,
		offset: offset,
		count:  count,
	}
}

// SectorCount returns the size of the device in sectors.
func (d *ImageDevice) SectorCount() uint32 {
	return d.count
}

func (d *ImageDevice) ReadSector(addr uint32, buf []byte) error {
	if err := checkTransfer(addr, d.count, buf); err != nil {
		return err
	}

	n, err := d.image.ReadAt(buf, d.offset+int64(addr)*SectorSize)
	// ReaderAt may report io.EOF together with a complete last sector.
	if n == SectorSize {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return checkpoint.Wrap(err, fmt.Errorf("%w: read %d bytes of sector %d", ErrShortTransfer, n, addr))
}

func (d *ImageDevice) WriteSector(addr uint32, buf []byte) error {
	if err := checkTransfer(addr, d.count, buf); err != nil {
		return err
	}

	n, err := d.image.WriteAt(buf, d.offset+int64(addr)*SectorSize)
	if err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("%w: wrote %d bytes of sector %d", ErrShortTransfer, n, addr))
	}
	return nil
}

func checkTransfer(addr, count uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return checkpoint.Wrapf(ErrInvalidBufferSize, "%d bytes", len(buf))
	}
	if addr >= count {
		return checkpoint.Wrapf(ErrSectorOutOfRange, "sector %d of %d", addr, count)
	}
	return nil
}
