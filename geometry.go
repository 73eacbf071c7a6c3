package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"

	"github.com/parallaxinc/PropWare-sub000/checkpoint"
)

// FATType is the width of the allocation table entries.
type FATType uint8

const (
	FAT16 FATType = 16
	FAT32 FATType = 32
)

func (t FATType) String() string {
	return fmt.Sprintf("FAT%d", uint8(t))
}

func (t FATType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Geometry is the layout of a mounted volume. All sector numbers are absolute
// device addresses, the partition start is already added.
type Geometry struct {
	Type                   FATType `yaml:"type" json:"type"`
	PartitionStart         uint32  `yaml:"partitionStart" json:"partitionStart"`
	TotalSectors           uint32  `yaml:"totalSectors" json:"totalSectors"`
	SectorsPerClusterShift uint8   `yaml:"sectorsPerClusterShift" json:"sectorsPerClusterShift"`
	ReservedSectors        uint16  `yaml:"reservedSectors" json:"reservedSectors"`
	NumFATs                uint8   `yaml:"numFATs" json:"numFATs"`

	// FATSize is the size of one FAT copy in sectors.
	FATSize  uint32 `yaml:"fatSize" json:"fatSize"`
	FATStart uint32 `yaml:"fatStart" json:"fatStart"`

	// RootDirSector and RootDirSectors locate the fixed FAT16 root directory.
	RootDirSector  uint32 `yaml:"rootDirSector,omitempty" json:"rootDirSector,omitempty"`
	RootDirSectors uint32 `yaml:"rootDirSectors,omitempty" json:"rootDirSectors,omitempty"`
	// RootCluster is the first cluster of the FAT32 root directory.
	RootCluster uint32 `yaml:"rootCluster,omitempty" json:"rootCluster,omitempty"`

	FirstDataSector          uint32 `yaml:"firstDataSector" json:"firstDataSector"`
	ClusterCount             uint32 `yaml:"clusterCount" json:"clusterCount"`
	EntriesPerFATSectorShift uint8  `yaml:"entriesPerFATSectorShift" json:"entriesPerFATSectorShift"`
	EOCBegin                 uint32 `yaml:"eocBegin" json:"eocBegin"`
	EOCEnd                   uint32 `yaml:"eocEnd" json:"eocEnd"`

	VolumeID uint32 `yaml:"volumeID" json:"volumeID"`
	Label    string `yaml:"label" json:"label"`
}

// SectorsPerCluster returns the number of sectors in one cluster.
func (g Geometry) SectorsPerCluster() uint32 {
	return 1 << g.SectorsPerClusterShift
}

// ClusterSize returns the size of one cluster in bytes.
func (g Geometry) ClusterSize() uint32 {
	return SectorSize << g.SectorsPerClusterShift
}

func (g Geometry) isEOC(v uint32) bool {
	return v >= g.EOCBegin && v <= g.EOCEnd
}

func (g Geometry) eocMarker() uint32 {
	return g.EOCEnd
}

// validCluster reports whether c addresses a data cluster of the volume.
func (g Geometry) validCluster(c uint32) bool {
	return c >= firstCluster && c < g.ClusterCount+firstCluster
}

// clusterSector returns the first sector of cluster c.
func (g Geometry) clusterSector(c uint32) uint32 {
	return (c-firstCluster)<<g.SectorsPerClusterShift + g.FirstDataSector
}

func hasBootSignature(b []byte) bool {
	return binary.LittleEndian.Uint16(b[bootSignatureOffset:]) == bootSignature
}

// isBootSector reports whether b starts with one of the x86 jumps every FAT boot sector starts with.
func isBootSector(b []byte) bool {
	return (b[0] == 0xEB && b[2] == 0x90) || b[0] == 0xE9
}

// partitionStart returns the LBA of the first partition if b is a master boot record.
func partitionStart(b []byte) (uint32, bool) {
	if isBootSector(b) || !hasBootSignature(b) {
		return 0, false
	}
	start := binary.LittleEndian.Uint32(b[mbrPartitionLBA:])
	return start, start != 0
}

// parseBootSector reads the geometry from the boot sector b found at sector start.
// Writable volumes must carry exactly two FATs.
func parseBootSector(b []byte, start uint32, writable bool) (Geometry, error) {
	if !hasBootSignature(b) || !isBootSector(b) {
		return Geometry{}, checkpoint.Wrapf(ErrBadBootSignature, "sector %d", start)
	}

	var bs bootSector
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &bs); err != nil {
		return Geometry{}, checkpoint.From(err)
	}

	if bs.BytesPerSector != SectorSize {
		return Geometry{}, checkpoint.Wrapf(ErrInvalidSectorSize, "%d bytes", bs.BytesPerSector)
	}
	if bs.SectorsPerCluster == 0 || bits.OnesCount8(bs.SectorsPerCluster) != 1 {
		return Geometry{}, checkpoint.Wrapf(ErrClusterSizeNotPowerOfTwo, "%d sectors", bs.SectorsPerCluster)
	}
	if bs.NumFATs == 0 || (writable && bs.NumFATs != 2) {
		return Geometry{}, checkpoint.Wrapf(ErrTooManyFATs, "%d FATs", bs.NumFATs)
	}

	g := Geometry{
		PartitionStart:         start,
		SectorsPerClusterShift: uint8(bits.TrailingZeros8(bs.SectorsPerCluster)),
		ReservedSectors:        bs.ReservedSectorCount,
		NumFATs:                bs.NumFATs,
		TotalSectors:           uint32(bs.TotalSectors16),
		FATSize:                uint32(bs.FATSize16),
	}
	if g.TotalSectors == 0 {
		g.TotalSectors = bs.TotalSectors32
	}

	var fat32 fat32SpecificData
	if err := binary.Read(bytes.NewReader(bs.FATSpecificData[:]), binary.LittleEndian, &fat32); err != nil {
		return Geometry{}, checkpoint.From(err)
	}
	if g.FATSize == 0 {
		g.FATSize = fat32.FATSize
	}

	g.RootDirSectors = (uint32(bs.RootEntryCount)*dirEntrySize + SectorSize - 1) / SectorSize
	metaSectors := uint32(g.ReservedSectors) + uint32(g.NumFATs)*g.FATSize + g.RootDirSectors
	if g.TotalSectors <= metaSectors {
		return Geometry{}, checkpoint.Wrapf(ErrBadBootSignature, "%d sectors hold no data area", g.TotalSectors)
	}
	g.ClusterCount = (g.TotalSectors - metaSectors) >> g.SectorsPerClusterShift

	g.FATStart = start + uint32(g.ReservedSectors)
	g.FirstDataSector = start + metaSectors

	switch {
	case g.ClusterCount < 4085:
		return Geometry{}, checkpoint.Wrapf(ErrUnsupportedFAT12, "%d clusters", g.ClusterCount)
	case g.ClusterCount < 65525:
		var fat16 fat16SpecificData
		if err := binary.Read(bytes.NewReader(bs.FATSpecificData[:]), binary.LittleEndian, &fat16); err != nil {
			return Geometry{}, checkpoint.From(err)
		}

		g.Type = FAT16
		g.EntriesPerFATSectorShift = 8
		g.EOCBegin, g.EOCEnd = fat16EOCMin, fat16EOC
		g.RootDirSector = g.FATStart + uint32(g.NumFATs)*g.FATSize
		g.VolumeID = fat16.VolumeID
		g.Label = volumeLabel(fat16.VolumeLabel[:])
	default:
		g.Type = FAT32
		g.EntriesPerFATSectorShift = 7
		g.EOCBegin, g.EOCEnd = fat32EOCMin, fat32EOC
		g.RootDirSectors = 0
		g.RootCluster = fat32.RootCluster & fat32Mask
		g.VolumeID = fat32.VolumeID
		g.Label = volumeLabel(fat32.VolumeLabel[:])

		if !g.validCluster(g.RootCluster) {
			return Geometry{}, checkpoint.Wrapf(ErrCorruptChain, "root cluster %d", g.RootCluster)
		}
	}

	// A FAT copy must be able to describe every cluster.
	if needed := (g.ClusterCount + firstCluster + 1<<g.EntriesPerFATSectorShift - 1) >> g.EntriesPerFATSectorShift; g.FATSize < needed {
		return Geometry{}, checkpoint.Wrapf(ErrCorruptChain, "FAT of %d sectors is too small for %d clusters", g.FATSize, g.ClusterCount)
	}

	return g, nil
}

// volumeLabel trims the space padding of an 11 byte label. The formatter default "NO NAME" reads as empty.
func volumeLabel(raw []byte) string {
	label := strings.TrimRight(string(raw), " \x00")
	if label == "NO NAME" {
		return ""
	}
	return label
}
