// Package format writes empty FAT16 and FAT32 file systems, optionally behind a
// master boot record with a single partition.
package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/parallaxinc/PropWare-sub000/checkpoint"
)

const sectorSize = 512

// Device is the write side of a block device with 512 byte sectors.
type Device interface {
	WriteSector(addr uint32, buf []byte) error
}

// Type selects the FAT variant.
type Type uint8

const (
	FAT16 Type = 16
	FAT32 Type = 32
)

func (t Type) String() string {
	return fmt.Sprintf("FAT%d", uint8(t))
}

// ParseType parses "fat16" or "fat32", in any case.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "FAT16", "16":
		return FAT16, nil
	case "FAT32", "32":
		return FAT32, nil
	}
	return 0, checkpoint.Wrapf(ErrUnknownType, "%q", s)
}

var (
	ErrUnknownType        = errors.New("unknown FAT type")
	ErrSizeOutOfRange     = errors.New("volume size does not fit the FAT type")
	ErrInvalidClusterSize = errors.New("sectors per cluster must be a power of two up to 128")
	ErrInvalidLabel       = errors.New("volume label is longer than 11 characters")
)

// Options describe the file system to create. Zero values select defaults.
type Options struct {
	Type Type
	// SectorsPerCluster is chosen as small as the FAT type allows if 0.
	SectorsPerCluster uint8
	// RootEntries is the size of the FAT16 root directory, 512 if 0.
	RootEntries uint16
	// ReservedSectors defaults to 1 for FAT16 and 32 for FAT32.
	ReservedSectors uint16
	Label           string
	// VolumeID is derived from a random UUID if 0.
	VolumeID uint32
	// PartitionStart places the volume at this sector behind a master boot record if not 0.
	PartitionStart uint32
}

// Layout is the geometry of a formatted volume, in sectors relative to the device.
type Layout struct {
	Type              Type   `yaml:"type"`
	PartitionStart    uint32 `yaml:"partitionStart"`
	TotalSectors      uint32 `yaml:"totalSectors"`
	SectorsPerCluster uint8  `yaml:"sectorsPerCluster"`
	ReservedSectors   uint16 `yaml:"reservedSectors"`
	FATSize           uint32 `yaml:"fatSize"`
	RootEntries       uint16 `yaml:"rootEntries"`
	RootDirSectors    uint32 `yaml:"rootDirSectors"`
	Clusters          uint32 `yaml:"clusters"`
	VolumeID          uint32 `yaml:"volumeID"`
	Label             string `yaml:"label"`
}

func (l Layout) fatStart() uint32 {
	return l.PartitionStart + uint32(l.ReservedSectors)
}

func (l Layout) rootStart() uint32 {
	return l.fatStart() + 2*l.FATSize
}

// Plan computes the layout of a volume of totalSectors device sectors without writing anything.
func Plan(totalSectors uint32, opts Options) (Layout, error) {
	l := Layout{
		Type:            opts.Type,
		PartitionStart:  opts.PartitionStart,
		ReservedSectors: opts.ReservedSectors,
		RootEntries:     opts.RootEntries,
		VolumeID:        opts.VolumeID,
		Label:           strings.ToUpper(opts.Label),
	}
	if l.Type == 0 {
		l.Type = FAT32
	}
	if l.Type != FAT16 && l.Type != FAT32 {
		return Layout{}, checkpoint.Wrapf(ErrUnknownType, "%d", uint8(l.Type))
	}
	if len(l.Label) > 11 {
		return Layout{}, checkpoint.Wrapf(ErrInvalidLabel, "%q", opts.Label)
	}
	if l.VolumeID == 0 {
		id := uuid.New()
		l.VolumeID = binary.LittleEndian.Uint32(id[:4])
	}
	if totalSectors <= l.PartitionStart {
		return Layout{}, checkpoint.Wrapf(ErrSizeOutOfRange, "partition starts at %d of %d sectors", l.PartitionStart, totalSectors)
	}
	l.TotalSectors = totalSectors - l.PartitionStart

	switch l.Type {
	case FAT16:
		if l.ReservedSectors == 0 {
			l.ReservedSectors = 1
		}
		if l.RootEntries == 0 {
			l.RootEntries = 512
		}
		l.RootDirSectors = (uint32(l.RootEntries)*32 + sectorSize - 1) / sectorSize
	case FAT32:
		if l.ReservedSectors == 0 {
			l.ReservedSectors = 32
		}
		l.RootEntries = 0
	}

	candidates := []uint8{1, 2, 4, 8, 16, 32, 64, 128}
	if opts.SectorsPerCluster != 0 {
		spc := opts.SectorsPerCluster
		if spc&(spc-1) != 0 {
			return Layout{}, checkpoint.Wrapf(ErrInvalidClusterSize, "%d", spc)
		}
		candidates = []uint8{spc}
	}

	for _, spc := range candidates {
		l.SectorsPerCluster = spc
		l.FATSize = fatSize(l)
		meta := uint32(l.ReservedSectors) + 2*l.FATSize + l.RootDirSectors
		if l.TotalSectors <= meta {
			break
		}
		l.Clusters = (l.TotalSectors - meta) / uint32(spc)

		if l.Type == FAT16 && l.Clusters >= 4085 && l.Clusters < 65525 {
			return l, nil
		}
		if l.Type == FAT32 && l.Clusters >= 65525 && l.Clusters < 0x0FFFFFF5 {
			return l, nil
		}
		if l.Clusters < 4085 || (l.Type == FAT32 && l.Clusters < 65525) {
			// Larger clusters only make it worse.
			break
		}
	}
	return Layout{}, checkpoint.Wrapf(ErrSizeOutOfRange, "%d sectors as %v", l.TotalSectors, l.Type)
}

// fatSize follows the FAT size computation of the Microsoft FAT specification.
func fatSize(l Layout) uint32 {
	tmp1 := l.TotalSectors - (uint32(l.ReservedSectors) + l.RootDirSectors)
	tmp2 := 256*uint32(l.SectorsPerCluster) + 2
	if l.Type == FAT32 {
		tmp2 /= 2
	}
	return (tmp1 + tmp2 - 1) / tmp2
}

// Format writes an empty file system of totalSectors device sectors to dev.
func Format(dev Device, totalSectors uint32, opts Options) (Layout, error) {
	l, err := Plan(totalSectors, opts)
	if err != nil {
		return Layout{}, err
	}

	w := writer{dev: dev}
	if l.PartitionStart != 0 {
		w.write(0, masterBootRecord(l))
	}

	boot := bootSector(l)
	w.write(l.PartitionStart, boot)
	if l.Type == FAT32 {
		info := fsInfo()
		w.write(l.PartitionStart+1, info)
		w.write(l.PartitionStart+6, boot)
		w.write(l.PartitionStart+7, info)
	}

	// Both FAT copies: reserved entries in the first sector, zeros elsewhere.
	first := make([]byte, sectorSize)
	if l.Type == FAT16 {
		binary.LittleEndian.PutUint16(first[0:], 0xFFF8)
		binary.LittleEndian.PutUint16(first[2:], 0xFFFF)
	} else {
		binary.LittleEndian.PutUint32(first[0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(first[4:], 0x0FFFFFFF)
		// Root directory cluster.
		binary.LittleEndian.PutUint32(first[8:], 0x0FFFFFFF)
	}
	zero := make([]byte, sectorSize)
	for copyIndex := uint32(0); copyIndex < 2; copyIndex++ {
		start := l.fatStart() + copyIndex*l.FATSize
		w.write(start, first)
		for s := uint32(1); s < l.FATSize; s++ {
			w.write(start+s, zero)
		}
	}

	rootSectors := l.RootDirSectors
	if l.Type == FAT32 {
		rootSectors = uint32(l.SectorsPerCluster)
	}
	root := make([]byte, sectorSize)
	if l.Label != "" {
		copy(root, paddedLabel(l.Label))
		root[11] = 0x08
	}
	w.write(l.rootStart(), root)
	for s := uint32(1); s < rootSectors; s++ {
		w.write(l.rootStart()+s, zero)
	}

	if w.err != nil {
		return Layout{}, w.err
	}
	return l, nil
}

// writer remembers the first error of a series of writes.
type writer struct {
	dev Device
	err error
}

func (w *writer) write(addr uint32, buf []byte) {
	if w.err != nil {
		return
	}
	if err := w.dev.WriteSector(addr, buf); err != nil {
		w.err = checkpoint.Wrapf(err, "format sector %d", addr)
	}
}

func paddedLabel(label string) []byte {
	if label == "" {
		label = "NO NAME"
	}
	return []byte(fmt.Sprintf("%-11s", label))
}

type biosParameterBlock struct {
	JumpBoot            [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumFATs             uint8
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               uint8
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
}

type extendedBootRecord struct {
	DriveNumber    uint8
	Reserved1      uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

type fat32Extension struct {
	FATSize      uint32
	ExtFlags     uint16
	FSVersion    uint16
	RootCluster  uint32
	FSInfo       uint16
	BkBootSector uint16
	Reserved     [12]byte
}

func bootSector(l Layout) []byte {
	bpb := biosParameterBlock{
		OEMName:             [8]byte{'M', 'S', 'W', 'I', 'N', '4', '.', '1'},
		BytesPerSector:      sectorSize,
		SectorsPerCluster:   l.SectorsPerCluster,
		ReservedSectorCount: l.ReservedSectors,
		NumFATs:             2,
		RootEntryCount:      l.RootEntries,
		Media:               0xF8,
		SectorsPerTrack:     63,
		NumberOfHeads:       255,
		HiddenSectors:       l.PartitionStart,
	}
	ebr := extendedBootRecord{
		DriveNumber:   0x80,
		BootSignature: 0x29,
		VolumeID:      l.VolumeID,
	}
	copy(ebr.VolumeLabel[:], paddedLabel(l.Label))

	var buf bytes.Buffer
	if l.Type == FAT16 {
		bpb.JumpBoot = [3]byte{0xEB, 0x3C, 0x90}
		bpb.FATSize16 = uint16(l.FATSize)
		if l.TotalSectors < 0x10000 {
			bpb.TotalSectors16 = uint16(l.TotalSectors)
		} else {
			bpb.TotalSectors32 = l.TotalSectors
		}
		copy(ebr.FileSystemType[:], "FAT16   ")
		_ = binary.Write(&buf, binary.LittleEndian, bpb)
	} else {
		bpb.JumpBoot = [3]byte{0xEB, 0x58, 0x90}
		bpb.TotalSectors32 = l.TotalSectors
		copy(ebr.FileSystemType[:], "FAT32   ")
		_ = binary.Write(&buf, binary.LittleEndian, bpb)
		_ = binary.Write(&buf, binary.LittleEndian, fat32Extension{
			FATSize:      l.FATSize,
			RootCluster:  2,
			FSInfo:       1,
			BkBootSector: 6,
		})
	}
	_ = binary.Write(&buf, binary.LittleEndian, ebr)

	b := make([]byte, sectorSize)
	copy(b, buf.Bytes())
	b[510], b[511] = 0x55, 0xAA
	return b
}

// fsInfo returns an FSInfo sector. Free count and next free cluster are left unknown
// because the driver does not maintain them.
func fsInfo() []byte {
	b := make([]byte, sectorSize)
	binary.LittleEndian.PutUint32(b[0:], 0x41615252)
	binary.LittleEndian.PutUint32(b[484:], 0x61417272)
	binary.LittleEndian.PutUint32(b[488:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(b[492:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(b[508:], 0xAA550000)
	return b
}

// masterBootRecord returns a partition table with one active partition holding the volume.
func masterBootRecord(l Layout) []byte {
	b := make([]byte, sectorSize)
	entry := b[0x1BE:]
	entry[0] = 0x80
	entry[4] = 0x0E // FAT16 LBA
	if l.Type == FAT32 {
		entry[4] = 0x0C // FAT32 LBA
	}
	binary.LittleEndian.PutUint32(entry[8:], l.PartitionStart)
	binary.LittleEndian.PutUint32(entry[12:], l.TotalSectors)
	b[510], b[511] = 0x55, 0xAA
	return b
}
