package fat

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/parallaxinc/PropWare-sub000/format"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Device sizes which give a FAT16 and a FAT32 volume with one sector per cluster.
const (
	fat16Sectors uint32 = 8192
	fat32Sectors uint32 = 70000
)

var testTime = time.Date(2024, 5, 17, 13, 37, 42, 0, time.UTC)

// errTransport is returned by failing test devices.
var errTransport = errors.New("transport failure")

func testClock() time.Time {
	return testTime
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func sectorsFor(typ format.Type) uint32 {
	if typ == format.FAT16 {
		return fat16Sectors
	}
	return fat32Sectors
}

// formatDevice returns a memory device with a fresh file system of the given type.
// Unset options default to one sector per cluster and a fixed volume id.
func formatDevice(t *testing.T, typ format.Type, sectors uint32, opts format.Options) *MemDevice {
	t.Helper()

	dev := NewMemDevice(sectors)
	opts.Type = typ
	if opts.SectorsPerCluster == 0 {
		opts.SectorsPerCluster = 1
	}
	if opts.VolumeID == 0 {
		opts.VolumeID = 0xC0FFEE
	}
	_, err := format.Format(dev, sectors, opts)
	require.NoError(t, err)
	return dev
}

func mountDevice(t *testing.T, dev BlockDevice, opts ...Option) *Volume {
	t.Helper()

	vol, err := Mount(dev, append([]Option{WithLogger(quietLogger()), WithClock(testClock)}, opts...)...)
	require.NoError(t, err)
	return vol
}

func newVolume(t *testing.T, typ format.Type, opts ...Option) (*Volume, *MemDevice) {
	t.Helper()

	dev := formatDevice(t, typ, sectorsFor(typ), format.Options{})
	return mountDevice(t, dev, opts...), dev
}

var volumeTypes = []format.Type{format.FAT16, format.FAT32}

// writeFile creates name in the current directory with the given content.
func writeFile(t *testing.T, vol *Volume, name string, content []byte) {
	t.Helper()

	f, err := vol.Open(name, ModeReadWrite)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(0))
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// readFile returns the content of name in the current directory.
func readFile(t *testing.T, vol *Volume, name string) []byte {
	t.Helper()

	f, err := vol.Open(name, ModeRead)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

// chain returns the clusters of the chain starting at start by reading the first FAT copy.
func chain(t *testing.T, vol *Volume, start uint32) []uint32 {
	t.Helper()

	var clusters []uint32
	for c := start; ; {
		clusters = append(clusters, c)
		next, err := vol.fatEntry(c)
		require.NoError(t, err)
		if vol.geo.isEOC(next) {
			return clusters
		}
		require.Less(t, len(clusters), int(vol.geo.ClusterCount), "chain loops")
		c = next
	}
}

// flakyDevice fails the next sector write once failWrite is set.
type flakyDevice struct {
	BlockDevice
	failWrite bool
}

func (d *flakyDevice) WriteSector(addr uint32, buf []byte) error {
	if d.failWrite {
		d.failWrite = false
		return errTransport
	}
	return d.BlockDevice.WriteSector(addr, buf)
}

// patchSector applies patch to one sector of dev.
func patchSector(t *testing.T, dev BlockDevice, addr uint32, patch func(b []byte)) {
	t.Helper()

	b := make([]byte, SectorSize)
	require.NoError(t, dev.ReadSector(addr, b))
	patch(b)
	require.NoError(t, dev.WriteSector(addr, b))
}

func putUint16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}

func putUint32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

// recordingDevice counts the transfers of the wrapped device.
type recordingDevice struct {
	BlockDevice
	reads  []uint32
	writes []uint32
}

func (d *recordingDevice) ReadSector(addr uint32, buf []byte) error {
	d.reads = append(d.reads, addr)
	return d.BlockDevice.ReadSector(addr, buf)
}

func (d *recordingDevice) WriteSector(addr uint32, buf []byte) error {
	d.writes = append(d.writes, addr)
	return d.BlockDevice.WriteSector(addr, buf)
}

func (d *recordingDevice) reset() {
	d.reads = nil
	d.writes = nil
}
