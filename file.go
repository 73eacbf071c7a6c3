package fat

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
)

// Mode selects what a File may do and where its cursors start.
type Mode uint8

const (
	// ModeRead opens an existing file for reading.
	ModeRead Mode = iota + 1
	// ModeReadWrite opens or creates a file with both cursors at the start.
	ModeReadWrite
	// ModeAppend opens or creates a file for writing with the write cursor at the end.
	ModeAppend
	// ModeAppendReadWrite is ModeAppend with reading from the start.
	ModeAppendReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeReadWrite:
		return "r+"
	case ModeAppend:
		return "a"
	case ModeAppendReadWrite:
		return "a+"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func (m Mode) valid() bool {
	return m >= ModeRead && m <= ModeAppendReadWrite
}

func (m Mode) readable() bool {
	return m != ModeAppend
}

func (m Mode) writable() bool {
	return m != ModeRead
}

// File is an open file of a Volume with independent read and write cursors.
// All files of a volume share one sector buffer; each file remembers which of
// its sectors the buffer holds while the buffer carries its handle id.
type File struct {
	vol  *Volume
	id   uint32
	name string
	mode Mode
	loc  entryLocation

	rptr   int64
	wptr   int64
	length uint32

	pos        chainPosition
	maxSectors uint32
	loaded     uint32

	dirtyLength bool
	dirtyStart  bool
}

// Open opens name in the current directory. Every mode except ModeRead creates a missing file.
func (v *Volume) Open(name string, mode Mode) (f *File, err error) {
	defer v.report("open", name, &err)
	if err := v.ready(); err != nil {
		return nil, err
	}
	if !mode.valid() {
		return nil, checkpoint.Wrapf(ErrInvalidFileMode, "%v", mode)
	}
	if mode.writable() && v.readOnly {
		return nil, checkpoint.From(ErrReadOnly)
	}

	raw, err := shortName(name)
	if err != nil {
		return nil, err
	}

	h, loc, err := v.find(v.cwd, raw)
	switch {
	case errors.Is(err, ErrFileNotFound) && mode.writable():
		h = newHeader(raw, AttrArchive, v.now())
		if loc, err = v.create(v.cwd, h); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case h.Attribute&AttrDirectory != 0:
		return nil, checkpoint.Wrapf(ErrEntryNotFile, "%q", name)
	case h.Attribute&AttrReadOnly != 0 && mode.writable():
		return nil, checkpoint.Wrapf(ErrEntryReadOnly, "%q", name)
	}

	f = &File{
		vol:    v,
		id:     v.nextID,
		name:   displayName(raw[:]),
		mode:   mode,
		loc:    loc,
		length: h.FileSize,
		pos:    newChainPosition(h.cluster()),
	}
	v.nextID++

	spc := v.geo.SectorsPerCluster()
	f.maxSectors = (f.length + SectorSize - 1) / SectorSize
	f.maxSectors = (f.maxSectors + spc - 1) &^ (spc - 1)
	if f.pos.start != 0 && f.maxSectors == 0 {
		// An empty file may still own its first cluster.
		f.maxSectors = spc
	}
	if f.pos.start != 0 && !v.geo.validCluster(f.pos.start) {
		return nil, checkpoint.Wrapf(ErrCorruptChain, "%q starts at cluster %#x", name, f.pos.start)
	}
	if mode == ModeAppend || mode == ModeAppendReadWrite {
		f.wptr = int64(f.length)
	}

	if f.length > 0 {
		if err := f.load(0); err != nil {
			return nil, err
		}
	}

	v.files[f.id] = f
	return f, nil
}

// Name returns the 8.3 name of the file.
func (f *File) Name() string {
	return f.name
}

// Mode returns the mode the file was opened with.
func (f *File) Mode() Mode {
	return f.mode
}

// Size returns the length of the file in bytes.
func (f *File) Size() int64 {
	return int64(f.length)
}

// TellRead returns the read cursor.
func (f *File) TellRead() int64 {
	return f.rptr
}

// TellWrite returns the write cursor.
func (f *File) TellWrite() int64 {
	return f.wptr
}

// EOF reports whether the read cursor is at or behind the end of the file.
func (f *File) EOF() bool {
	return f.rptr >= int64(f.length)
}

func (f *File) open() error {
	if f.vol == nil {
		return checkpoint.From(ErrFileClosed)
	}
	return f.vol.ready()
}

func (f *File) checkRead() error {
	if err := f.open(); err != nil {
		return err
	}
	if !f.mode.readable() {
		return checkpoint.Wrapf(ErrInvalidFileMode, "read in mode %v", f.mode)
	}
	return nil
}

func (f *File) checkWrite() error {
	if err := f.open(); err != nil {
		return err
	}
	if !f.mode.writable() {
		return checkpoint.Wrapf(ErrInvalidFileMode, "write in mode %v", f.mode)
	}
	return nil
}

// load makes the file sector with the given index current in the shared content buffer.
func (f *File) load(index uint32) error {
	v := f.vol
	if v.cache.owns(&v.cache.content, f.id) && f.loaded == index {
		return nil
	}

	if err := v.seekCluster(&f.pos, index>>v.geo.SectorsPerClusterShift); err != nil {
		return err
	}
	addr := v.geo.clusterSector(f.pos.current) + index&(v.geo.SectorsPerCluster()-1)
	if err := v.cache.fetch(&v.cache.content, addr, f.id); err != nil {
		return err
	}
	f.loaded = index
	return nil
}

// reserve makes sure the file sector with the given index belongs to the file.
// Sectors are only ever reserved in order, so index is at most maxSectors.
func (f *File) reserve(index uint32) error {
	if index < f.maxSectors {
		return nil
	}

	v := f.vol
	if f.pos.start == 0 {
		c, err := v.allocate(v.allocHint)
		if err != nil {
			return err
		}
		f.pos = newChainPosition(c)
		f.dirtyStart = true
	} else {
		// A failed write may have linked the next cluster without the length
		// reaching it. Such a cluster is reused.
		err := v.seekCluster(&f.pos, f.maxSectors>>v.geo.SectorsPerClusterShift)
		switch {
		case errors.Is(err, ErrReadingPastEOC):
			if _, err := v.extend(&f.pos); err != nil {
				return err
			}
		case err != nil:
			return err
		}
	}
	f.maxSectors += v.geo.SectorsPerCluster()
	return nil
}

// ReadByte returns the byte at the read cursor and advances it.
// It returns io.EOF at the end of the file.
func (f *File) ReadByte() (b byte, err error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	defer f.vol.report("read", f.name, &err)

	if f.rptr >= int64(f.length) {
		return 0, io.EOF
	}
	if err := f.load(uint32(f.rptr / SectorSize)); err != nil {
		return 0, err
	}
	b = f.vol.cache.content.buffer[f.rptr%SectorSize]
	f.rptr++
	return b, nil
}

// Read reads up to len(p) bytes at the read cursor.
func (f *File) Read(p []byte) (n int, err error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	defer f.vol.report("read", f.name, &err)

	for n < len(p) {
		left := int64(f.length) - f.rptr
		if left <= 0 {
			if n == 0 {
				return 0, io.EOF
			}
			break
		}
		if err := f.load(uint32(f.rptr / SectorSize)); err != nil {
			return n, err
		}

		off := int(f.rptr % SectorSize)
		chunk := min(SectorSize-off, len(p)-n, int(min(left, SectorSize)))
		copy(p[n:n+chunk], f.vol.cache.content.buffer[off:])
		n += chunk
		f.rptr += int64(chunk)
	}
	return n, nil
}

// ReadLine reads up to and including the next '\n' into buf. It stops early when buf is
// full or the file ends. The returned slice aliases buf. It returns io.EOF if no byte is left.
func (f *File) ReadLine(buf []byte) ([]byte, error) {
	n := 0
	for n < len(buf) {
		b, err := f.ReadByte()
		if err == io.EOF {
			if n == 0 {
				return nil, io.EOF
			}
			break
		}
		if err != nil {
			return buf[:n], err
		}

		buf[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return buf[:n], nil
}

// WriteByte writes b at the write cursor and advances it, growing the file if needed.
func (f *File) WriteByte(b byte) error {
	_, err := f.Write([]byte{b})
	return err
}

// WriteString writes s at the write cursor.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Write writes p at the write cursor, allocating clusters as the file grows.
func (f *File) Write(p []byte) (n int, err error) {
	if err := f.checkWrite(); err != nil {
		return 0, err
	}
	defer f.vol.report("write", f.name, &err)

	if f.wptr+int64(len(p)) > math.MaxUint32 {
		return 0, checkpoint.Wrapf(ErrFileTooLarge, "%d + %d bytes", f.wptr, len(p))
	}

	c := &f.vol.cache
	for n < len(p) {
		index := uint32(f.wptr / SectorSize)
		if err := f.reserve(index); err != nil {
			return n, err
		}
		if err := f.load(index); err != nil {
			return n, err
		}

		off := int(f.wptr % SectorSize)
		chunk := copy(c.content.buffer[off:], p[n:])
		c.markDirty(&c.content)
		n += chunk
		f.wptr += int64(chunk)

		if f.wptr > int64(f.length) {
			f.length = uint32(f.wptr)
			f.dirtyLength = true
		}
	}
	return n, nil
}

// SeekRead moves the read cursor. The target must lie inside the file, in
// [0, length). The cursor cannot be seeked to the end, so SeekRead(0, io.SeekEnd)
// fails with ErrOutOfRange even on an empty file; use EOF to detect the end.
func (f *File) SeekRead(offset int64, whence int) (int64, error) {
	if err := f.open(); err != nil {
		return 0, err
	}

	abs, err := f.resolve(offset, whence, f.rptr)
	if err != nil {
		return 0, err
	}
	if abs < 0 || abs >= int64(f.length) {
		return 0, checkpoint.Wrapf(ErrOutOfRange, "read offset %d, length %d", abs, f.length)
	}
	f.rptr = abs
	return abs, nil
}

// SeekWrite moves the write cursor. The target may be the end of the file.
func (f *File) SeekWrite(offset int64, whence int) (int64, error) {
	if err := f.open(); err != nil {
		return 0, err
	}

	abs, err := f.resolve(offset, whence, f.wptr)
	if err != nil {
		return 0, err
	}
	if abs < 0 || abs > int64(f.length) {
		return 0, checkpoint.Wrapf(ErrOutOfRange, "write offset %d, length %d", abs, f.length)
	}
	f.wptr = abs
	return abs, nil
}

func (f *File) resolve(offset int64, whence int, cur int64) (int64, error) {
	switch whence {
	case io.SeekStart:
		return offset, nil
	case io.SeekCurrent:
		return cur + offset, nil
	case io.SeekEnd:
		return int64(f.length) + offset, nil
	}
	return 0, checkpoint.Wrapf(ErrInvalidSeekOrigin, "whence %d", whence)
}

// Truncate shortens the file to size bytes and frees the clusters no longer needed.
func (f *File) Truncate(size int64) (err error) {
	if err := f.checkWrite(); err != nil {
		return err
	}
	defer f.vol.report("truncate", f.name, &err)

	if size < 0 || size > int64(f.length) {
		return checkpoint.Wrapf(ErrOutOfRange, "truncate to %d, length %d", size, f.length)
	}

	v := f.vol
	if v.cache.owns(&v.cache.content, f.id) {
		if err := v.cache.flush(&v.cache.content); err != nil {
			return err
		}
		// The buffered sector may belong to a cluster freed below.
		v.cache.content.owner = ownerVolume
	}

	spc := v.geo.SectorsPerCluster()
	keep := uint32((size + int64(v.geo.ClusterSize()) - 1) / int64(v.geo.ClusterSize()))
	switch {
	case f.pos.start == 0:
	case keep == 0:
		if err := v.freeChain(f.pos.start); err != nil {
			return err
		}
		f.pos = newChainPosition(0)
		f.maxSectors = 0
		f.dirtyStart = true
	default:
		// Also releases clusters linked behind the length by a failed write.
		if err := v.truncateChain(&f.pos, keep); err != nil {
			return err
		}
		f.maxSectors = keep * spc
	}

	if uint32(size) != f.length {
		f.length = uint32(size)
		f.dirtyLength = true
	}
	f.rptr = min(f.rptr, size)
	f.wptr = min(f.wptr, size)
	return nil
}

// Sync writes the file's buffered sector and its directory entry to the device.
func (f *File) Sync() (err error) {
	if err := f.open(); err != nil {
		return err
	}
	defer f.vol.report("sync", f.name, &err)

	if err := f.commit(); err != nil {
		return err
	}
	return f.vol.cache.flushAll()
}

// commit writes back the file's buffered sector and stores a changed length or
// first cluster in the directory entry.
func (f *File) commit() error {
	v := f.vol
	c := &v.cache
	if c.owns(&c.content, f.id) {
		if err := c.flush(&c.content); err != nil {
			return err
		}
	}

	if !f.dirtyLength && !f.dirtyStart {
		return nil
	}
	raw, err := v.entryAt(f.loc)
	if err != nil {
		return err
	}
	h := decodeHeader(raw)
	h.FileSize = f.length
	h.setCluster(f.pos.start)
	h.Attribute |= AttrArchive
	h.stamp(v.now())
	h.encode(raw)
	c.markDirty(&c.content)

	f.dirtyLength = false
	f.dirtyStart = false
	return nil
}

// Close stores the file's length and first cluster and releases the handle.
// Closing a closed file does nothing.
func (f *File) Close() (err error) {
	if f.vol == nil {
		return nil
	}
	v := f.vol
	defer v.report("close", f.name, &err)
	if err := v.ready(); err != nil {
		return err
	}

	if err := f.commit(); err != nil {
		return err
	}

	delete(v.files, f.id)
	*f = File{}
	return nil
}
