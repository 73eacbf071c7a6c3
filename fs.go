package fat

import (
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
	"github.com/spf13/afero"
)

// Fs exposes a mounted Volume as afero.Fs.
// Names are single 8.3 names relative to the volume's current directory; a leading
// slash is ignored. "", "." and "/" name the current directory itself.
type Fs struct {
	vol *Volume
}

// NewFs returns an afero.Fs on vol.
func NewFs(vol *Volume) *Fs {
	return &Fs{vol: vol}
}

// Volume returns the underlying volume.
func (fs *Fs) Volume() *Volume {
	return fs.vol
}

// cleanName strips slashes and dots from name. Names with more than one component fail.
func cleanName(name string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	if strings.Contains(cleaned, "/") {
		return "", checkpoint.Wrapf(ErrInvalidName, "%q: only single names are supported", name)
	}
	return cleaned, nil
}

func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	n, err := cleanName(name)
	if err != nil {
		return pathError("mkdir", name, err)
	}
	return pathError("mkdir", name, fs.vol.Mkdir(n))
}

// MkdirAll creates name unless it already is a directory. Nested paths are not supported.
func (fs *Fs) MkdirAll(name string, perm os.FileMode) error {
	n, err := cleanName(name)
	if err != nil {
		return pathError("mkdir", name, err)
	}
	if n == "" {
		return nil
	}

	entry, err := fs.vol.Stat(n)
	if err == nil {
		if entry.IsDir() {
			return nil
		}
		return pathError("mkdir", name, syscall.ENOTDIR)
	}
	return fs.Mkdir(n, perm)
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile maps the os flags onto the file modes of the volume.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	n, err := cleanName(name)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	writing := flag&(os.O_WRONLY|os.O_RDWR) != 0

	if n == "" {
		if writing {
			return nil, pathError("open", name, syscall.EISDIR)
		}
		dir, err := fs.vol.OpenDirectory()
		if err != nil {
			return nil, pathError("open", name, err)
		}
		return &aferoFile{fs: fs, name: name, dir: dir, entry: DirEntry{Name: "/", Attr: AttrDirectory}}, nil
	}

	entry, err := fs.vol.Stat(n)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrFileNotFound) {
		return nil, pathError("open", name, err)
	}

	switch {
	case exists && flag&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL:
		return nil, pathError("open", name, ErrExists)
	case exists && entry.IsDir():
		if writing {
			return nil, pathError("open", name, syscall.EISDIR)
		}
		dir, err := fs.vol.openDir(entry.Cluster)
		if err != nil {
			return nil, pathError("open", name, err)
		}
		return &aferoFile{fs: fs, name: name, dir: dir, entry: entry}, nil
	case !exists && (flag&os.O_CREATE == 0 || !writing):
		return nil, pathError("open", name, ErrFileNotFound)
	}

	mode := ModeRead
	switch {
	case flag&os.O_APPEND != 0 && flag&os.O_RDWR != 0:
		mode = ModeAppendReadWrite
	case flag&os.O_APPEND != 0 && flag&os.O_WRONLY != 0:
		mode = ModeAppend
	case writing:
		mode = ModeReadWrite
	}

	f, err := fs.vol.Open(n, mode)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	if flag&os.O_TRUNC != 0 && writing {
		if err := f.Truncate(0); err != nil {
			_ = f.Close()
			return nil, pathError("open", name, err)
		}
	}
	return &aferoFile{fs: fs, name: name, file: f, append: flag&os.O_APPEND != 0}, nil
}

func (fs *Fs) Remove(name string) error {
	n, err := cleanName(name)
	if err != nil {
		return pathError("remove", name, err)
	}
	return pathError("remove", name, fs.vol.Remove(n))
}

// RemoveAll removes name and, for a directory, everything below it.
// A missing name is not an error.
func (fs *Fs) RemoveAll(name string) error {
	n, err := cleanName(name)
	if err != nil {
		return pathError("removeall", name, err)
	}

	err = fs.removeTree(n)
	if errors.Is(err, ErrFileNotFound) {
		return nil
	}
	return pathError("removeall", name, err)
}

func (fs *Fs) removeTree(name string) error {
	entry, err := fs.vol.Stat(name)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return fs.vol.Remove(name)
	}

	if err := fs.vol.Chdir(name); err != nil {
		return err
	}
	err = fs.removeChildren()
	if cdErr := fs.vol.Chdir(".."); err == nil {
		err = cdErr
	}
	if err != nil {
		return err
	}
	return fs.vol.Remove(name)
}

// removeChildren removes everything in the current directory.
func (fs *Fs) removeChildren() error {
	dir, err := fs.vol.OpenDirectory()
	if err != nil {
		return err
	}

	var children []DirEntry
	for {
		child, err := dir.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		children = append(children, child)
	}

	for _, child := range children {
		if err := fs.removeTree(child.Name); err != nil {
			return err
		}
	}
	return nil
}

func (fs *Fs) Rename(oldname, newname string) error {
	from, err := cleanName(oldname)
	if err != nil {
		return pathError("rename", oldname, err)
	}
	to, err := cleanName(newname)
	if err != nil {
		return pathError("rename", newname, err)
	}
	return pathError("rename", oldname, fs.vol.Rename(from, to))
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	n, err := cleanName(name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	entry, err := fs.vol.Stat(n)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return entry.FileInfo(), nil
}

func (fs *Fs) Name() string {
	return "FAT"
}

// Chmod only maps the owner write bit onto the read-only attribute.
func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	n, err := cleanName(name)
	if err != nil {
		return pathError("chmod", name, err)
	}
	return pathError("chmod", name, fs.vol.SetReadOnly(n, mode&0o200 == 0))
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return pathError("chown", name, errors.ErrUnsupported)
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return pathError("chtimes", name, errors.ErrUnsupported)
}
