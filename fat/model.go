// File model contains the structs which match the direct structures of the FAT filesystem.

package fat

// DirEntrySize is the on-disk size of a DirEntry.
const DirEntrySize = 32

// Attribute bits of a DirEntry.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolume    = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20

	// AttrLongName marks a VFAT long filename slot.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolume
)

// Special values of the first name byte.
const (
	nameUnused   = 0x00
	nameDeleted  = 0xE5
	nameDeleted2 = 0x05
	nameDot      = '.'
)

// BootSector is the beginning of a FAT12/16 boot sector as stored on disk.
// All multi byte values are little endian and not aligned, so it must be
// decoded with encoding/binary instead of being mapped onto memory.
type BootSector struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	FATSize16         uint16
	SectorsPerTrack   uint16
	NumberOfHeads     uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	FAT16             FAT16SpecificData
}

type FAT16SpecificData struct {
	DriveNumber    byte
	Reserved1      byte
	BootSignature  byte
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

// DirEntry is a short (8.3) directory entry.
type DirEntry struct {
	Name           [8]byte
	Ext            [3]byte
	Attribute      byte
	Case           byte
	CreateTimeMs   byte
	CreateTime     uint16
	CreateDate     uint16
	LastAccessDate uint16
	StartHi        uint16
	Time           uint16
	Date           uint16
	Start          uint16
	Size           uint32
}

// IsFree reports whether the slot is unused or holds a deleted entry.
func (e *DirEntry) IsFree() bool {
	switch e.Name[0] {
	case nameUnused, nameDeleted, nameDeleted2:
		return true
	}
	return false
}

func (e *DirEntry) IsLongName() bool {
	return e.Attribute&AttrLongName == AttrLongName
}

// IsVolumeLabel reports whether the entry is the volume label (and not a long name slot).
func (e *DirEntry) IsVolumeLabel() bool {
	return e.Attribute&AttrVolume != 0 && !e.IsLongName()
}

func (e *DirEntry) IsDir() bool {
	return e.Attribute&AttrDirectory != 0
}

// IsDot reports whether the name starts with a dot, i.e. "." or "..".
func (e *DirEntry) IsDot() bool {
	return e.Name[0] == nameDot
}

func (e *DirEntry) IsReadOnly() bool {
	return e.Attribute&AttrReadOnly != 0
}
