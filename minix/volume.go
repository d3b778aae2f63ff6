// Package minix reads and extends Minix V1 volumes with 30 character names.
//
// The disk layout is fixed: boot block, superblock, inode bitmap, zone bitmap,
// inode table and the data zones. Both bitmaps are held in memory while the
// volume is open and only written back by Close.
package minix

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/golang/glog"
	"go.uber.org/multierr"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
	"github.com/aligator/fat2minix/diskio"
)

// Volume is an opened Minix volume.
type Volume struct {
	dev diskio.Device
	sb  Superblock

	imap *bitmap
	zmap *bitmap
}

// Open reads the superblock and both bitmaps of the volume in dev.
func Open(dev diskio.Device) (*Volume, error) {
	v := &Volume{dev: dev}

	buf := make([]byte, binary.Size(Superblock{}))
	if err := diskio.ReadAt(dev, superblockOffset, buf, "superblock"); err != nil {
		return nil, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v.sb); err != nil {
		return nil, checkpoint.From(err)
	}

	if err := validate(&v.sb); err != nil {
		return nil, err
	}

	if glog.V(1) {
		glog.Infof("Minix volume: %d inodes, %d zones, %d imap blocks, %d zmap blocks, first data zone %d",
			v.sb.Inodes, v.sb.Zones, v.sb.IMapBlocks, v.sb.ZMapBlocks, v.sb.FirstDataZone)
	}

	imap, err := v.loadMap("inode bitmap", v.imapOffset(), v.sb.IMapBlocks)
	if err != nil {
		return nil, err
	}
	// Bit i belongs to inode i. Bit 0 is reserved.
	v.imap = newBitmap("inode bitmap", imap, 1, uint32(v.sb.Inodes)+1)

	zmap, err := v.loadMap("zone bitmap", v.zmapOffset(), v.sb.ZMapBlocks)
	if err != nil {
		// Do not keep a half opened volume.
		v.imap = nil
		return nil, err
	}
	// Bit i belongs to zone FirstDataZone+i-1. Bit 0 is reserved.
	v.zmap = newBitmap("zone bitmap", zmap, 1, uint32(v.sb.Zones-v.sb.FirstDataZone)+1)

	return v, nil
}

func validate(sb *Superblock) error {
	if sb.Magic != Magic {
		return checkpoint.Errorf("%w: magic %#04x, expected %#04x (V1, 30 character names)", diskerr.ErrInvalidGeometry, sb.Magic, Magic)
	}
	if sb.LogZoneSize != 0 {
		return checkpoint.Errorf("%w: zone size %d is not supported", diskerr.ErrInvalidGeometry, BlockSize<<sb.LogZoneSize)
	}
	if sb.Inodes == 0 || sb.IMapBlocks == 0 || sb.ZMapBlocks == 0 {
		return checkpoint.Errorf("%w: %d inodes, %d imap blocks, %d zmap blocks", diskerr.ErrAllocation, sb.Inodes, sb.IMapBlocks, sb.ZMapBlocks)
	}

	minFirst := 2 + int64(sb.IMapBlocks) + int64(sb.ZMapBlocks) + sb.InodeTableBlocks()
	if int64(sb.FirstDataZone) < minFirst || sb.Zones <= sb.FirstDataZone {
		return checkpoint.Errorf("%w: first data zone %d (at least %d), %d zones", diskerr.ErrInvalidGeometry, sb.FirstDataZone, minFirst, sb.Zones)
	}
	return nil
}

func (v *Volume) imapOffset() int64 {
	return imapOffset
}

func (v *Volume) zmapOffset() int64 {
	return imapOffset + int64(v.sb.IMapBlocks)*BlockSize
}

func (v *Volume) inodeTableOffset() int64 {
	return v.zmapOffset() + int64(v.sb.ZMapBlocks)*BlockSize
}

func (v *Volume) loadMap(what string, off int64, blocks uint16) ([]byte, error) {
	buf := make([]byte, int64(blocks)*BlockSize)
	if err := diskio.ReadAt(v.dev, off, buf, what); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close writes both bitmaps back. Their content is not checked. Both writes
// are attempted even if the first one fails.
// The volume cannot be used afterwards.
func (v *Volume) Close() error {
	if v.imap == nil || v.zmap == nil {
		return checkpoint.Errorf("%w: minix volume", os.ErrClosed)
	}

	var err error
	err = multierr.Append(err, diskio.WriteAt(v.dev, v.imapOffset(), v.imap.slice, "inode bitmap"))
	err = multierr.Append(err, diskio.WriteAt(v.dev, v.zmapOffset(), v.zmap.slice, "zone bitmap"))

	v.imap = nil
	v.zmap = nil
	return err
}

// Superblock returns a copy of the superblock.
func (v *Volume) Superblock() Superblock {
	return v.sb
}

// AllocInode marks the lowest free inode as used and returns its number.
func (v *Volume) AllocInode() (uint16, error) {
	bit, err := v.imap.allocate()
	if err != nil {
		return 0, err
	}
	glog.V(2).Infof("allocated inode %d", bit)
	return uint16(bit), nil
}

// AllocZone marks the lowest free zone as used and returns its number.
// The zone is not cleared.
func (v *Volume) AllocZone() (uint16, error) {
	bit, err := v.zmap.allocate()
	if err != nil {
		return 0, err
	}
	zone := uint16(bit) + v.sb.FirstDataZone - 1
	glog.V(2).Infof("allocated zone %d", zone)
	return zone, nil
}

// InodeInUse reports whether the bit of inode n is set.
func (v *Volume) InodeInUse(n uint16) bool {
	return v.imap.get(uint32(n))
}

// ZoneInUse reports whether the bit of the given zone is set.
func (v *Volume) ZoneInUse(zone uint16) bool {
	if zone < v.sb.FirstDataZone {
		return true
	}
	return v.zmap.get(uint32(zone-v.sb.FirstDataZone) + 1)
}

func (v *Volume) inodeOffset(n uint16) (int64, error) {
	if n < 1 || n > v.sb.Inodes {
		return 0, checkpoint.Errorf("%w: inode %d is outside of 1-%d", diskerr.ErrSeek, n, v.sb.Inodes)
	}
	return v.inodeTableOffset() + int64(n-1)*InodeSize, nil
}

// ReadInode reads inode n.
func (v *Volume) ReadInode(n uint16) (Inode, error) {
	var ino Inode

	off, err := v.inodeOffset(n)
	if err != nil {
		return ino, err
	}

	buf := make([]byte, InodeSize)
	if err := diskio.ReadAt(v.dev, off, buf, "inode"); err != nil {
		return ino, checkpoint.Wrap(err, errInodef("read", n))
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ino); err != nil {
		return ino, checkpoint.From(err)
	}
	return ino, nil
}

// WriteInode stores ino as inode n.
func (v *Volume) WriteInode(n uint16, ino *Inode) error {
	off, err := v.inodeOffset(n)
	if err != nil {
		return err
	}

	buf := bytes.NewBuffer(make([]byte, 0, InodeSize))
	if err := binary.Write(buf, binary.LittleEndian, ino); err != nil {
		return checkpoint.From(err)
	}
	if err := diskio.WriteAt(v.dev, off, buf.Bytes(), "inode"); err != nil {
		return checkpoint.Wrap(err, errInodef("write", n))
	}
	return nil
}

func errInodef(op string, n uint16) error {
	return fmt.Errorf("could not %s inode %d", op, n)
}
