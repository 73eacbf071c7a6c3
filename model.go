// File model contains the structs and constants matching the on-disk structures of a FAT volume.

package fat

// bootSector is the common part of a FAT boot sector, followed by the 54 bytes
// whose layout depends on the FAT type.
type bootSector struct {
	JumpBoot            [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

type fat16SpecificData struct {
	DriveNumber    byte
	Reserved1      byte
	BootSignature  byte
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

type fat32SpecificData struct {
	FATSize        uint32
	ExtFlags       uint16
	FSVersion      uint16
	RootCluster    uint32
	FSInfo         uint16
	BkBootSector   uint16
	Reserved       [12]byte
	DriveNumber    byte
	Reserved1      byte
	BootSignature  byte
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

// entryHeader is one 32 byte short name directory entry.
type entryHeader struct {
	Name            [11]byte
	Attribute       Attr
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// Boot sector and partition table offsets.
const (
	bootSignatureOffset = 510
	mbrPartitionLBA     = 0x1C6
	bootSignature       = 0xAA55 // 0x55 0xAA read little endian
)

// Directory entry layout.
const (
	dirEntrySize        = 32
	dirEntriesPerSector = SectorSize / dirEntrySize

	// First name byte markers.
	entryEnd       = 0x00
	entryDeleted   = 0xE5
	entryEscapedE5 = 0x05
)

// Attr holds the attribute bits of a directory entry.
type Attr uint8

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrVolumeID  Attr = 0x08
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20

	// AttrLongName marks the entries of a VFAT long file name.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Cluster values.
const (
	fat16EOC     = 0xFFFF
	fat16EOCMin  = 0xFFF8
	fat32EOC     = 0x0FFFFFFF
	fat32EOCMin  = 0x0FFFFFF8
	fat32Mask    = 0x0FFFFFFF
	firstCluster = 2

	// Clusters 2 to 8 of a FAT32 volume are left to the root directory and
	// tools which expect them to be in use.
	fat32FirstFree = 9
)
