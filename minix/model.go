// File model contains the structs which match the on-disk structures of a
// Minix V1 filesystem with 30 character names.

package minix

import "bytes"

const (
	// BlockSize is the size of a block and of a zone (log zone size is always 0).
	BlockSize = 1024

	// Magic identifies a V1 filesystem with 30 character names.
	Magic = 0x138F

	// RootIno is the inode number of the root directory.
	RootIno = 1

	InodeSize    = 32
	DirEntrySize = 32
	NameLen      = 30

	// DirectZones is the number of zones addressed directly by an inode.
	DirectZones = 7
	// IndirectZone is the index of the single indirect zone in Inode.Zone.
	IndirectZone = 7
	// DoubleIndirectZone is not supported.
	DoubleIndirectZone = 8

	// zonesPerBlock is the number of zone numbers in an indirect block.
	zonesPerBlock = BlockSize / 2

	// MaxFileBlocks is the largest number of blocks a file can have without
	// double indirection.
	MaxFileBlocks = DirectZones + zonesPerBlock

	// MaxDirectoryBlocks limits directory tables to the direct zones.
	MaxDirectoryBlocks = DirectZones

	superblockOffset = BlockSize
	imapOffset       = 2 * BlockSize

	// stateValid marks a cleanly unmounted filesystem.
	stateValid = 1
)

// Mode bits of an inode.
const (
	ModeType      = 0170000
	ModeDirectory = 0040000
	ModeRegular   = 0100000
	ModePerm      = 0000777
)

// Superblock is stored in the second block of the volume.
type Superblock struct {
	Inodes        uint16
	Zones         uint16 // total number of blocks, including the metadata blocks
	IMapBlocks    uint16
	ZMapBlocks    uint16
	FirstDataZone uint16
	LogZoneSize   uint16
	MaxSize       uint32
	Magic         uint16
	State         uint16
	Zones32       uint32 // only used by V2
}

// InodeTableBlocks returns the number of blocks used by the inode table.
func (s *Superblock) InodeTableBlocks() int64 {
	return (int64(s.Inodes)*InodeSize + BlockSize - 1) / BlockSize
}

// Inode is a V1 inode.
type Inode struct {
	Mode   uint16
	UID    uint16
	Size   uint32
	Time   uint32
	GID    uint8
	NLinks uint8
	Zone   [9]uint16
}

func (i *Inode) IsDir() bool {
	return i.Mode&ModeType == ModeDirectory
}

func (i *Inode) IsRegular() bool {
	return i.Mode&ModeType == ModeRegular
}

// Blocks returns the number of blocks needed for Size bytes.
func (i *Inode) Blocks() int {
	return int((int64(i.Size) + BlockSize - 1) / BlockSize)
}

// DirEntry is one record of a directory table. The name is padded with NUL
// bytes and not terminated if it has the full length.
type DirEntry struct {
	Ino  uint16
	Name [NameLen]byte
}

// FileName returns the name without padding.
func (e *DirEntry) FileName() string {
	if i := bytes.IndexByte(e.Name[:], 0); i >= 0 {
		return string(e.Name[:i])
	}
	return string(e.Name[:])
}
