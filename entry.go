package fat

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
	"golang.org/x/text/encoding/charmap"
)

// DirEntry is a decoded short name directory entry.
type DirEntry struct {
	Name     string
	Attr     Attr
	Cluster  uint32
	Size     uint32
	Created  time.Time
	Modified time.Time
}

// IsDir reports whether the entry is a subdirectory.
func (e DirEntry) IsDir() bool {
	return e.Attr&AttrDirectory != 0
}

// Characters not allowed in a short name, in addition to control characters.
const invalidNameChars = "\"*+,./:;<=>?[\\]| "

// shortName converts a name like "readme.txt" into the 11 byte space padded,
// upper case form stored on disk. Characters outside ASCII are stored in code
// page 437. "." and ".." are kept as they are.
func shortName(name string) ([11]byte, error) {
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}
	if name == "." || name == ".." {
		copy(raw[:], name)
		return raw, nil
	}

	oem, err := charmap.CodePage437.NewEncoder().String(name)
	if err != nil {
		return raw, checkpoint.Wrapf(ErrInvalidName, "%q", name)
	}
	base, ext := oem, ""
	if i := strings.IndexByte(oem, '.'); i >= 0 {
		base, ext = oem[:i], oem[i+1:]
		if ext == "" {
			return raw, checkpoint.Wrapf(ErrInvalidName, "%q", name)
		}
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return raw, checkpoint.Wrapf(ErrInvalidName, "%q", name)
	}

	for i, part := range []string{base, ext} {
		for j := 0; j < len(part); j++ {
			ch := part[j]
			if ch < 0x20 || ch == 0x7F || strings.IndexByte(invalidNameChars, ch) >= 0 {
				return raw, checkpoint.Wrapf(ErrInvalidName, "%q", name)
			}
			if 'a' <= ch && ch <= 'z' {
				ch -= 'a' - 'A'
			}
			raw[i*8+j] = ch
		}
	}
	if raw[0] == entryDeleted {
		raw[0] = entryEscapedE5
	}
	return raw, nil
}

// displayName renders an on-disk name as "NAME.EXT" in UTF-8.
func displayName(raw []byte) string {
	base := bytes.TrimRight(raw[:8], " ")
	ext := bytes.TrimRight(raw[8:11], " ")

	name := string(base)
	if len(name) > 0 && name[0] == entryEscapedE5 {
		name = "\xE5" + name[1:]
	}
	if len(ext) > 0 {
		name += "." + string(ext)
	}
	s, err := charmap.CodePage437.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return s
}

func decodeHeader(raw []byte) entryHeader {
	var h entryHeader
	// Reading from a 32 byte slice into a 32 byte struct cannot fail.
	_ = binary.Read(bytes.NewReader(raw[:dirEntrySize]), binary.LittleEndian, &h)
	return h
}

func (h *entryHeader) encode(raw []byte) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, h)
	copy(raw[:dirEntrySize], buf.Bytes())
}

func (h *entryHeader) cluster() uint32 {
	return uint32(h.FirstClusterHI)<<16 | uint32(h.FirstClusterLO)
}

func (h *entryHeader) setCluster(c uint32) {
	h.FirstClusterHI = uint16(c >> 16)
	h.FirstClusterLO = uint16(c)
}

func (h *entryHeader) stamp(t time.Time) {
	h.WriteDate = FormatDate(t)
	h.WriteTime = FormatTime(t)
	h.LastAccessDate = h.WriteDate
}

// entry returns the decoded form of the header.
func (h *entryHeader) entry() DirEntry {
	return DirEntry{
		Name:     displayName(h.Name[:]),
		Attr:     h.Attribute,
		Cluster:  h.cluster(),
		Size:     h.FileSize,
		Created:  joinDateTime(h.CreateDate, h.CreateTime),
		Modified: joinDateTime(h.WriteDate, h.WriteTime),
	}
}

// newHeader returns a fresh entry created at t.
func newHeader(name [11]byte, attr Attr, t time.Time) entryHeader {
	h := entryHeader{
		Name:            name,
		Attribute:       attr,
		CreateTimeTenth: uint8(t.Second()%2*100 + t.Nanosecond()/10_000_000),
		CreateTime:      FormatTime(t),
		CreateDate:      FormatDate(t),
	}
	h.stamp(t)
	return h
}

// Helpers on the raw 32 bytes, used while scanning a directory sector.

func rawIsEnd(raw []byte) bool {
	return raw[0] == entryEnd
}

func rawIsDeleted(raw []byte) bool {
	return raw[0] == entryDeleted
}

// rawIsFileOrDir reports whether raw is a live entry which is neither part of a long name nor a volume label.
func rawIsFileOrDir(raw []byte) bool {
	attr := Attr(raw[11])
	return !rawIsEnd(raw) && !rawIsDeleted(raw) && attr&AttrLongName != AttrLongName && attr&AttrVolumeID == 0
}

func rawIsDot(raw []byte) bool {
	return raw[0] == '.'
}
