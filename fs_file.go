package fat

import (
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
)

// aferoFile is the afero.File returned by Fs. It keeps a single offset like *os.File
// and positions the read or write cursor of the underlying File before every transfer.
type aferoFile struct {
	fs   *Fs
	name string

	// Exactly one of file and dir is set.
	file   *File
	dir    *Dir
	entry  DirEntry
	append bool
	offset int64
}

func (a *aferoFile) Close() error {
	if a.file == nil {
		a.dir = nil
		return nil
	}
	return a.file.Close()
}

func (a *aferoFile) Name() string {
	return a.name
}

func (a *aferoFile) Read(p []byte) (int, error) {
	if a.file == nil {
		return 0, pathError("read", a.name, syscall.EISDIR)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if a.offset >= a.file.Size() {
		return 0, io.EOF
	}

	a.file.rptr = a.offset
	n, err := a.file.Read(p)
	a.offset += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes at off without moving the offset.
func (a *aferoFile) ReadAt(p []byte, off int64) (int, error) {
	if a.file == nil {
		return 0, pathError("read", a.name, syscall.EISDIR)
	}
	if off < 0 {
		return 0, checkpoint.Wrapf(ErrOutOfRange, "offset %d", off)
	}

	a.file.rptr = off
	n := 0
	for n < len(p) {
		m, err := a.file.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (a *aferoFile) Seek(offset int64, whence int) (int64, error) {
	if a.file == nil {
		return 0, pathError("seek", a.name, syscall.EISDIR)
	}

	abs, err := a.file.resolve(offset, whence, a.offset)
	if err != nil {
		return 0, err
	}
	if abs < 0 || abs > a.file.Size() {
		return 0, checkpoint.Wrapf(ErrOutOfRange, "offset %d, length %d", abs, a.file.Size())
	}
	a.offset = abs
	return abs, nil
}

func (a *aferoFile) Write(p []byte) (int, error) {
	if a.file == nil {
		return 0, pathError("write", a.name, syscall.EISDIR)
	}

	if a.append {
		a.offset = a.file.Size()
	}
	a.file.wptr = a.offset
	n, err := a.file.Write(p)
	a.offset += int64(n)
	return n, err
}

// WriteAt writes p at off, which may be at most the current size.
func (a *aferoFile) WriteAt(p []byte, off int64) (int, error) {
	if a.file == nil {
		return 0, pathError("write", a.name, syscall.EISDIR)
	}
	if a.append {
		return 0, pathError("writeat", a.name, errors.New("invalid use of WriteAt on file opened with O_APPEND"))
	}
	if off < 0 || off > a.file.Size() {
		return 0, checkpoint.Wrapf(ErrOutOfRange, "offset %d, length %d", off, a.file.Size())
	}

	a.file.wptr = off
	return a.file.Write(p)
}

func (a *aferoFile) WriteString(s string) (int, error) {
	return a.Write([]byte(s))
}

// Readdir reads the contents of a directory.
// May return syscall.ENOTDIR if the file is no directory.
func (a *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	if a.dir == nil {
		return nil, pathError("readdir", a.name, syscall.ENOTDIR)
	}

	var result []os.FileInfo
	for count <= 0 || len(result) < count {
		entry, err := a.dir.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, err
		}
		result = append(result, entry.FileInfo())
	}

	if count > 0 && len(result) == 0 {
		return nil, io.EOF
	}
	return result, nil
}

func (a *aferoFile) Readdirnames(count int) ([]string, error) {
	infos, err := a.Readdir(count)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

func (a *aferoFile) Stat() (os.FileInfo, error) {
	if a.file == nil {
		return a.entry.FileInfo(), nil
	}

	entry, err := a.fs.vol.Stat(a.file.Name())
	if err != nil {
		return nil, err
	}
	// The directory entry is only updated on Sync and Close.
	entry.Size = uint32(a.file.Size())
	return entry.FileInfo(), nil
}

func (a *aferoFile) Sync() error {
	if a.file == nil {
		return nil
	}
	return a.file.Sync()
}

func (a *aferoFile) Truncate(size int64) error {
	if a.file == nil {
		return pathError("truncate", a.name, syscall.EISDIR)
	}
	return a.file.Truncate(size)
}
