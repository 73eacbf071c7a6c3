package fat

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
	"github.com/sirupsen/logrus"
)

// dirCursor walks the entries of one directory.
type dirCursor struct {
	// fixed is set for the FAT16 root directory, which is not a cluster chain.
	fixed bool
	pos   chainPosition
	// sector is the index of the current sector within the directory, offset the entry within it.
	sector uint32
	offset uint32
}

// entryLocation addresses one directory entry on the device.
type entryLocation struct {
	sector uint32
	offset uint32
}

// dirCursor returns a cursor on the first entry of the directory starting at cluster, 0 for the root.
func (v *Volume) dirCursor(cluster uint32) dirCursor {
	if cluster == 0 {
		if v.geo.Type == FAT16 {
			return dirCursor{fixed: true}
		}
		cluster = v.geo.RootCluster
	}
	return dirCursor{pos: newChainPosition(cluster)}
}

func (d *dirCursor) next() {
	d.offset += dirEntrySize
	if d.offset == SectorSize {
		d.offset = 0
		d.sector++
	}
}

// dirSector returns the address of the directory sector with the given index, or io.EOF
// beyond the last one. After io.EOF on a chained directory, pos is on its last cluster.
func (v *Volume) dirSector(d *dirCursor, index uint32) (uint32, error) {
	g := &v.geo
	if d.fixed {
		if index >= g.RootDirSectors {
			return 0, io.EOF
		}
		return g.RootDirSector + index, nil
	}

	if err := v.seekCluster(&d.pos, index>>g.SectorsPerClusterShift); err != nil {
		if errors.Is(err, ErrReadingPastEOC) {
			return 0, io.EOF
		}
		return 0, err
	}
	return g.clusterSector(d.pos.current) + index&(g.SectorsPerCluster()-1), nil
}

// loadEntry makes the sector of the cursor's entry current and returns the entry bytes.
// The slice is only valid until the content buffer is used for another sector.
func (v *Volume) loadEntry(d *dirCursor) ([]byte, entryLocation, error) {
	addr, err := v.dirSector(d, d.sector)
	if err != nil {
		return nil, entryLocation{}, err
	}
	if err := v.cache.fetch(&v.cache.content, addr, ownerVolume); err != nil {
		return nil, entryLocation{}, err
	}
	return v.cache.content.buffer[d.offset : d.offset+dirEntrySize], entryLocation{sector: addr, offset: d.offset}, nil
}

// entryAt loads the entry at loc for modification.
func (v *Volume) entryAt(loc entryLocation) ([]byte, error) {
	if err := v.cache.fetch(&v.cache.content, loc.sector, ownerVolume); err != nil {
		return nil, err
	}
	return v.cache.content.buffer[loc.offset : loc.offset+dirEntrySize], nil
}

// find looks up the entry with the given on-disk name in the directory starting at cluster.
// Deleted entries, long name parts and the volume label never match.
func (v *Volume) find(cluster uint32, name [11]byte) (entryHeader, entryLocation, error) {
	d := v.dirCursor(cluster)
	for {
		raw, loc, err := v.loadEntry(&d)
		if err == io.EOF || (err == nil && rawIsEnd(raw)) {
			return entryHeader{}, entryLocation{}, checkpoint.Wrapf(ErrFileNotFound, "%q", displayName(name[:]))
		}
		if err != nil {
			return entryHeader{}, entryLocation{}, err
		}

		if rawIsFileOrDir(raw) && bytes.Equal(raw[:11], name[:]) {
			return decodeHeader(raw), loc, nil
		}
		d.next()
	}
}

// create stores h in the first free or deleted slot of the directory starting at cluster.
// A chained directory grows by one zeroed cluster if it is full.
func (v *Volume) create(cluster uint32, h entryHeader) (entryLocation, error) {
	d := v.dirCursor(cluster)
	for {
		raw, loc, err := v.loadEntry(&d)
		if err == io.EOF {
			if d.fixed {
				return entryLocation{}, checkpoint.Wrapf(ErrDirectoryFull, "%d root entries", v.geo.RootDirSectors*dirEntriesPerSector)
			}
			if err := v.growDir(&d); err != nil {
				return entryLocation{}, err
			}
			continue
		}
		if err != nil {
			return entryLocation{}, err
		}

		if rawIsEnd(raw) || rawIsDeleted(raw) {
			h.encode(raw)
			v.cache.markDirty(&v.cache.content)
			return loc, nil
		}
		d.next()
	}
}

// growDir appends a zeroed cluster to the directory of d.
func (v *Volume) growDir(d *dirCursor) error {
	c, err := v.extend(&d.pos)
	if err != nil {
		return err
	}
	if err := v.zeroCluster(c); err != nil {
		return err
	}

	v.log.WithFields(logrus.Fields{
		"directory": d.pos.start,
		"cluster":   c,
	}).Debug("directory extended")
	return nil
}

func (v *Volume) zeroCluster(c uint32) error {
	first := v.geo.clusterSector(c)
	for i := uint32(0); i < v.geo.SectorsPerCluster(); i++ {
		if err := v.cache.blank(&v.cache.content, first+i, ownerVolume); err != nil {
			return err
		}
	}
	return nil
}

// lookup resolves a name in the current directory.
func (v *Volume) lookup(name string) (entryHeader, entryLocation, error) {
	raw, err := shortName(name)
	if err != nil {
		return entryHeader{}, entryLocation{}, err
	}
	return v.find(v.cwd, raw)
}

// Exists reports whether name is present in the current directory.
func (v *Volume) Exists(name string) (ok bool, err error) {
	defer v.report("exists", name, &err)
	if err := v.ready(); err != nil {
		return false, err
	}

	_, _, err = v.lookup(name)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Stat returns the directory entry of name in the current directory.
// "" and "/" return a synthetic entry for the root directory.
func (v *Volume) Stat(name string) (entry DirEntry, err error) {
	defer v.report("stat", name, &err)
	if err := v.ready(); err != nil {
		return DirEntry{}, err
	}

	if name == "" || name == "/" {
		return DirEntry{Name: "/", Attr: AttrDirectory}, nil
	}
	h, _, err := v.lookup(name)
	if err != nil {
		return DirEntry{}, err
	}
	return h.entry(), nil
}

// Mkdir creates a subdirectory in the current directory.
func (v *Volume) Mkdir(name string) (err error) {
	defer v.report("mkdir", name, &err)
	if err := v.writable(); err != nil {
		return err
	}

	raw, err := shortName(name)
	if err != nil {
		return err
	}
	if name == "." || name == ".." {
		return checkpoint.Wrapf(ErrExists, "%q", name)
	}
	if _, _, err := v.find(v.cwd, raw); err == nil {
		return checkpoint.Wrapf(ErrExists, "%q", name)
	} else if !errors.Is(err, ErrFileNotFound) {
		return err
	}

	c, err := v.allocate(v.allocHint)
	if err != nil {
		return err
	}
	if err := v.zeroCluster(c); err != nil {
		return err
	}

	now := v.now()
	if err := v.cache.fetch(&v.cache.content, v.geo.clusterSector(c), ownerVolume); err != nil {
		return err
	}
	dot, _ := shortName(".")
	self := newHeader(dot, AttrDirectory, now)
	self.setCluster(c)
	self.encode(v.cache.content.buffer[0:])
	dotdot, _ := shortName("..")
	parent := newHeader(dotdot, AttrDirectory, now)
	parent.setCluster(v.cwd)
	parent.encode(v.cache.content.buffer[dirEntrySize:])
	v.cache.markDirty(&v.cache.content)

	h := newHeader(raw, AttrDirectory, now)
	h.setCluster(c)
	if _, err := v.create(v.cwd, h); err != nil {
		return errors.Join(err, v.freeChain(c))
	}
	return nil
}

// Chdir changes the current directory to the subdirectory name of the current directory.
// "/" returns to the root directory and ".." to the parent.
func (v *Volume) Chdir(name string) (err error) {
	defer v.report("chdir", name, &err)
	if err := v.ready(); err != nil {
		return err
	}

	if name == "/" || name == "" {
		v.cwd = 0
		return nil
	}
	if strings.Contains(name, "/") {
		return checkpoint.Wrapf(ErrInvalidName, "%q: only single directory names are supported", name)
	}
	if v.cwd == 0 && (name == "." || name == "..") {
		return nil
	}

	h, _, err := v.lookup(name)
	if err != nil {
		return err
	}
	if h.Attribute&AttrDirectory == 0 {
		return checkpoint.Wrapf(ErrEntryNotDir, "%q", name)
	}

	c := h.cluster()
	if v.geo.Type == FAT32 && c == v.geo.RootCluster {
		c = 0
	}
	v.cwd = c
	return nil
}

// Remove deletes the file or empty directory name from the current directory and frees its clusters.
func (v *Volume) Remove(name string) (err error) {
	defer v.report("remove", name, &err)
	if err := v.writable(); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return checkpoint.Wrapf(ErrInvalidName, "%q", name)
	}

	h, loc, err := v.lookup(name)
	if err != nil {
		return err
	}
	for _, f := range v.files {
		if f.loc == loc {
			return checkpoint.Wrapf(ErrBusy, "%q", name)
		}
	}
	if h.Attribute&AttrDirectory != 0 {
		empty, err := v.dirEmpty(h.cluster())
		if err != nil {
			return err
		}
		if !empty {
			return checkpoint.Wrapf(ErrDirectoryNotEmpty, "%q", name)
		}
	}

	raw, err := v.entryAt(loc)
	if err != nil {
		return err
	}
	raw[0] = entryDeleted
	v.cache.markDirty(&v.cache.content)

	if c := h.cluster(); c != 0 {
		return v.freeChain(c)
	}
	return nil
}

// dirEmpty reports whether the directory at cluster holds nothing but "." and "..".
func (v *Volume) dirEmpty(cluster uint32) (bool, error) {
	if cluster == 0 {
		return false, checkpoint.Wrapf(ErrCorruptChain, "subdirectory without cluster")
	}

	d := v.dirCursor(cluster)
	for {
		raw, _, err := v.loadEntry(&d)
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if rawIsEnd(raw) {
			return true, nil
		}
		if rawIsFileOrDir(raw) && !rawIsDot(raw) {
			return false, nil
		}
		d.next()
	}
}

// Rename changes the name of an entry in the current directory. newName must not exist yet.
func (v *Volume) Rename(oldName, newName string) (err error) {
	defer v.report("rename", oldName, &err)
	if err := v.writable(); err != nil {
		return err
	}

	to, err := shortName(newName)
	if err != nil {
		return err
	}
	if newName == "." || newName == ".." {
		return checkpoint.Wrapf(ErrInvalidName, "%q", newName)
	}
	if _, _, err := v.find(v.cwd, to); err == nil {
		return checkpoint.Wrapf(ErrExists, "%q", newName)
	} else if !errors.Is(err, ErrFileNotFound) {
		return err
	}

	_, loc, err := v.lookup(oldName)
	if err != nil {
		return err
	}
	raw, err := v.entryAt(loc)
	if err != nil {
		return err
	}
	copy(raw[:11], to[:])
	v.cache.markDirty(&v.cache.content)

	for _, f := range v.files {
		if f.loc == loc {
			f.name = displayName(to[:])
		}
	}
	return nil
}

// SetReadOnly sets or clears the read-only attribute of name in the current directory.
func (v *Volume) SetReadOnly(name string, readOnly bool) (err error) {
	defer v.report("set read-only", name, &err)
	if err := v.writable(); err != nil {
		return err
	}

	_, loc, err := v.lookup(name)
	if err != nil {
		return err
	}
	raw, err := v.entryAt(loc)
	if err != nil {
		return err
	}
	h := decodeHeader(raw)
	if readOnly {
		h.Attribute |= AttrReadOnly
	} else {
		h.Attribute &^= AttrReadOnly
	}
	h.encode(raw)
	v.cache.markDirty(&v.cache.content)
	return nil
}

// Label returns the volume label from the root directory, or from the boot sector if
// the root directory has none.
func (v *Volume) Label() (label string, err error) {
	defer v.report("label", "", &err)
	if err := v.ready(); err != nil {
		return "", err
	}

	d := v.dirCursor(0)
	for {
		raw, _, err := v.loadEntry(&d)
		if err == io.EOF || (err == nil && rawIsEnd(raw)) {
			return v.geo.Label, nil
		}
		if err != nil {
			return "", err
		}
		attr := Attr(raw[11])
		if !rawIsDeleted(raw) && attr&AttrLongName != AttrLongName && attr&AttrVolumeID != 0 {
			return volumeLabel(raw[:11]), nil
		}
		d.next()
	}
}

// Dir enumerates the entries of a directory.
type Dir struct {
	vol    *Volume
	cursor dirCursor
	start  uint32
	done   bool

	// SkipHidden leaves out entries with the hidden or system attribute.
	SkipHidden bool
}

// OpenRootDirectory returns an enumerator over the root directory.
func (v *Volume) OpenRootDirectory() (*Dir, error) {
	return v.openDir(0)
}

// OpenDirectory returns an enumerator over the current directory.
func (v *Volume) OpenDirectory() (*Dir, error) {
	return v.openDir(v.cwd)
}

func (v *Volume) openDir(cluster uint32) (*Dir, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	return &Dir{
		vol:    v,
		cursor: v.dirCursor(cluster),
		start:  cluster,
	}, nil
}

// Next returns the next file or subdirectory. Deleted entries, long name parts, the
// volume label, "." and ".." are skipped. It returns io.EOF after the last entry.
func (d *Dir) Next() (entry DirEntry, err error) {
	v := d.vol
	defer v.report("next entry", "", &err)
	if err := v.ready(); err != nil {
		return DirEntry{}, err
	}

	for !d.done {
		raw, _, err := v.loadEntry(&d.cursor)
		if err == io.EOF || (err == nil && rawIsEnd(raw)) {
			d.done = true
			break
		}
		if err != nil {
			return DirEntry{}, err
		}
		d.cursor.next()

		if !rawIsFileOrDir(raw) || rawIsDot(raw) {
			continue
		}
		h := decodeHeader(raw)
		if d.SkipHidden && h.Attribute&(AttrHidden|AttrSystem) != 0 {
			continue
		}
		return h.entry(), nil
	}
	return DirEntry{}, io.EOF
}

// Rewind restarts the enumeration at the first entry.
func (d *Dir) Rewind() {
	d.cursor = d.vol.dirCursor(d.start)
	d.done = false
}
