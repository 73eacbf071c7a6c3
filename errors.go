package fat

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/afero"
)

// These errors may occur while mounting a volume.
var (
	ErrBadBootSignature         = errors.New("no FAT boot sector found")
	ErrInvalidSectorSize        = errors.New("sector size is not 512 bytes")
	ErrClusterSizeNotPowerOfTwo = errors.New("sectors per cluster is not a power of two")
	ErrTooManyFATs              = errors.New("volume must have exactly two FATs")
	ErrUnsupportedFAT12         = errors.New("FAT12 volumes are not supported")
)

// These errors may occur while resolving names and directories.
var (
	ErrFileNotFound      = fmt.Errorf("file not found: %w", os.ErrNotExist)
	ErrEntryNotFile      = errors.New("entry is a directory")
	ErrEntryNotDir       = errors.New("entry is not a directory")
	ErrInvalidName       = fmt.Errorf("not a valid 8.3 name: %w", os.ErrInvalid)
	ErrExists            = fmt.Errorf("entry already exists: %w", os.ErrExist)
	ErrDirectoryFull     = errors.New("directory has no free entry")
	ErrDirectoryNotEmpty = errors.New("directory is not empty")
	ErrBusy              = errors.New("file is open")
	ErrEntryReadOnly     = fmt.Errorf("entry is read-only: %w", os.ErrPermission)
	ErrReadOnly          = fmt.Errorf("volume is mounted read-only: %w", os.ErrPermission)
	ErrNotMounted        = errors.New("volume is not mounted")
	ErrSectorOutOfRange  = errors.New("sector address beyond the end of the device")
	ErrInvalidBufferSize = errors.New("buffer is not one sector long")
	ErrShortTransfer     = errors.New("device transferred less than one sector")
	ErrUnsupportedDevice = fmt.Errorf("raw devices are not supported on this platform: %w", errors.ErrUnsupported)
)

// These errors may occur while walking or growing cluster chains.
var (
	ErrReadingPastEOC = errors.New("read past the end of the cluster chain")
	ErrCorruptChain   = errors.New("cluster chain points outside the volume")
	ErrChainNotAtEnd  = errors.New("cluster is not the last of its chain")
	ErrNoSpace        = errors.New("no free cluster left")
)

// These errors may occur while processing a file.
var (
	ErrInvalidSeekOrigin = fmt.Errorf("invalid seek origin: %w", syscall.EINVAL)
	ErrOutOfRange        = fmt.Errorf("offset out of range: %w", afero.ErrOutOfRange)
	ErrInvalidFileMode   = errors.New("operation not allowed in this file mode")
	ErrFileClosed        = fmt.Errorf("file is not open: %w", os.ErrClosed)
	ErrFileTooLarge      = errors.New("file would exceed 4 GiB")
)
