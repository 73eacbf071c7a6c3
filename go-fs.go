package fat

import (
	"io/fs"
	"sort"

	"github.com/spf13/afero"
)

// GoFs exposes a volume as fs.FS, fs.StatFS and fs.ReadDirFS on top of its afero view.
// afero.NewIOFS(NewFs(vol)) works as well and adds fs.ReadFileFS and fs.GlobFS.
type GoFs struct {
	*Fs
}

// NewGoFS returns the volume as fs.FS.
func NewGoFS(vol *Volume) GoFs {
	return GoFs{NewFs(vol)}
}

func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	f, err := g.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return goFile{f}, nil
}

func (g GoFs) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	return g.Fs.Stat(name)
}

// ReadDir returns the entries of the directory sorted by name.
func (g GoFs) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.(goFile).ReadDir(-1)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, err
}

// goFile adds fs.ReadDirFile to afero.File.
type goFile struct {
	afero.File
}

func (g goFile) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := g.File.Readdir(n)
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, err
}
