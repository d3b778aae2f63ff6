package minix

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
	"github.com/aligator/fat2minix/diskio"
)

const bitsPerBlock = BlockSize * 8

// FormatOptions describes a new volume.
type FormatOptions struct {
	// Zones is the size of the volume in blocks.
	Zones uint16
	// Inodes defaults to a third of Zones.
	Inodes uint16

	// UID, GID and Time are stamped on the root directory.
	UID  uint16
	GID  uint8
	Time time.Time
}

// Format writes an empty volume with a root directory into dev.
// The first opts.Zones blocks of dev are overwritten.
func Format(dev diskio.Device, opts FormatOptions) error {
	sb, err := layout(opts)
	if err != nil {
		return err
	}

	if glog.V(1) {
		glog.Infof("formatting %d zones, %d inodes, first data zone %d", sb.Zones, sb.Inodes, sb.FirstDataZone)
	}

	zero := make([]byte, 64*BlockSize)
	for off := int64(0); off < int64(sb.Zones)*BlockSize; off += int64(len(zero)) {
		n := int64(sb.Zones)*BlockSize - off
		if n > int64(len(zero)) {
			n = int64(len(zero))
		}
		if err := diskio.WriteAt(dev, off, zero[:n], "empty block"); err != nil {
			return err
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, BlockSize))
	if err := binary.Write(buf, binary.LittleEndian, sb); err != nil {
		return checkpoint.From(err)
	}
	if err := diskio.WriteAt(dev, superblockOffset, buf.Bytes(), "superblock"); err != nil {
		return err
	}

	// Bit 0 of both maps is never used. Bits past the end of the volume are
	// marked as used so they are never handed out.
	imap := newBitmap("inode bitmap", make([]byte, int(sb.IMapBlocks)*BlockSize), 0, 0)
	imap.set(0, true)
	imap.set(RootIno, true)
	for i := uint32(sb.Inodes) + 1; i < uint32(len(imap.slice))*8; i++ {
		imap.set(i, true)
	}

	zmap := newBitmap("zone bitmap", make([]byte, int(sb.ZMapBlocks)*BlockSize), 0, 0)
	zmap.set(0, true)
	zmap.set(1, true) // root directory
	for i := uint32(sb.Zones-sb.FirstDataZone) + 1; i < uint32(len(zmap.slice))*8; i++ {
		zmap.set(i, true)
	}

	if err := diskio.WriteAt(dev, imapOffset, imap.slice, "inode bitmap"); err != nil {
		return err
	}
	if err := diskio.WriteAt(dev, imapOffset+int64(sb.IMapBlocks)*BlockSize, zmap.slice, "zone bitmap"); err != nil {
		return err
	}

	v := &Volume{dev: dev, sb: *sb}
	root := Inode{
		Mode:   ModeDirectory | 0755,
		UID:    opts.UID,
		GID:    opts.GID,
		Size:   2 * DirEntrySize,
		NLinks: 2,
	}
	if !opts.Time.IsZero() {
		root.Time = uint32(opts.Time.Unix())
	}
	root.Zone[0] = sb.FirstDataZone

	dot, _ := NewDirEntry(RootIno, ".")
	dotdot, _ := NewDirEntry(RootIno, "..")
	if err := v.WriteDirectoryTable(&root, []DirEntry{dot, dotdot}); err != nil {
		return err
	}
	return v.WriteInode(RootIno, &root)
}

// layout computes the superblock of a new volume.
func layout(opts FormatOptions) (*Superblock, error) {
	inodes := opts.Inodes
	if inodes == 0 {
		inodes = opts.Zones / 3
	}
	if inodes == 0 {
		return nil, checkpoint.Errorf("%w: %d zones leave no room for inodes", diskerr.ErrInvalidGeometry, opts.Zones)
	}

	sb := &Superblock{
		Inodes:     inodes,
		Zones:      opts.Zones,
		IMapBlocks: uint16((uint32(inodes) + 1 + bitsPerBlock - 1) / bitsPerBlock),
		ZMapBlocks: uint16((uint32(opts.Zones) + bitsPerBlock - 1) / bitsPerBlock),
		MaxSize:    (DirectZones + zonesPerBlock + zonesPerBlock*zonesPerBlock) * BlockSize,
		Magic:      Magic,
		State:      stateValid,
	}

	first := 2 + int64(sb.IMapBlocks) + int64(sb.ZMapBlocks) + sb.InodeTableBlocks()
	if first >= int64(opts.Zones) {
		return nil, checkpoint.Errorf("%w: %d zones, but the metadata needs %d", diskerr.ErrInvalidGeometry, opts.Zones, first+1)
	}
	sb.FirstDataZone = uint16(first)
	return sb, nil
}
