package fat

import (
	"os"
	"time"
)

// FileInfo returns the entry as os.FileInfo. Sys returns the DirEntry.
func (e DirEntry) FileInfo() os.FileInfo {
	return entryFileInfo{e}
}

type entryFileInfo struct {
	entry DirEntry
}

func (e entryFileInfo) Name() string {
	return e.entry.Name
}

func (e entryFileInfo) Size() int64 {
	return int64(e.entry.Size)
}

// Mode maps the read-only attribute to missing write permission.
func (e entryFileInfo) Mode() os.FileMode {
	mode := os.FileMode(0o666)
	if e.entry.Attr&AttrReadOnly != 0 {
		mode = 0o444
	}
	if e.IsDir() {
		mode |= os.ModeDir | 0o111
	}
	return mode
}

func (e entryFileInfo) ModTime() time.Time {
	return e.entry.Modified
}

func (e entryFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

func (e entryFileInfo) Sys() interface{} {
	return e.entry
}
