//go:build !linux

package fat

// RawDevice is a BlockDevice on a block special file. It is only available on linux.
type RawDevice struct{}

// OpenRawDevice always fails on this platform.
func OpenRawDevice(path string, readOnly bool) (*RawDevice, error) {
	return nil, ErrUnsupportedDevice
}

func (d *RawDevice) SectorCount() uint32                       { return 0 }
func (d *RawDevice) ReadSector(addr uint32, buf []byte) error  { return ErrUnsupportedDevice }
func (d *RawDevice) WriteSector(addr uint32, buf []byte) error { return ErrUnsupportedDevice }
func (d *RawDevice) Close() error                              { return nil }
