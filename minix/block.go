package minix

import (
	"encoding/binary"

	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
	"github.com/aligator/fat2minix/diskio"
)

func (v *Volume) checkZone(zone uint16) error {
	if zone < v.sb.FirstDataZone || zone >= v.sb.Zones {
		return checkpoint.Errorf("%w: zone %d is outside of the data zones %d-%d", diskerr.ErrSeek, zone, v.sb.FirstDataZone, v.sb.Zones-1)
	}
	return nil
}

func (v *Volume) readZone(zone uint16, what string) ([]byte, error) {
	if err := v.checkZone(zone); err != nil {
		return nil, err
	}
	buf := make([]byte, BlockSize)
	if err := diskio.ReadAt(v.dev, int64(zone)*BlockSize, buf, what); err != nil {
		return nil, err
	}
	return buf, nil
}

func (v *Volume) writeZone(zone uint16, buf []byte, what string) error {
	if err := v.checkZone(zone); err != nil {
		return err
	}
	return diskio.WriteAt(v.dev, int64(zone)*BlockSize, buf, what)
}

// zoneFor maps the logical block index i of ino to a zone.
// If alloc is set, missing zones (including the indirect block) are allocated
// and recorded in ino, otherwise a missing zone is diskerr.ErrHole.
func (v *Volume) zoneFor(i int, ino *Inode, alloc bool) (uint16, error) {
	switch {
	case i < 0:
		return 0, checkpoint.Errorf("%w: negative block index %d", diskerr.ErrSeek, i)
	case i >= MaxFileBlocks:
		return 0, checkpoint.Errorf("%w: block index %d, at most %d blocks are addressable", diskerr.ErrUnsupportedIndirection, i, MaxFileBlocks)
	case i < DirectZones:
		if ino.Zone[i] == 0 {
			if !alloc {
				return 0, checkpoint.Errorf("%w: block %d", diskerr.ErrHole, i)
			}
			zone, err := v.AllocZone()
			if err != nil {
				return 0, err
			}
			ino.Zone[i] = zone
		}
		return ino.Zone[i], nil
	}

	if ino.Zone[IndirectZone] == 0 {
		if !alloc {
			return 0, checkpoint.Errorf("%w: block %d, no indirect block", diskerr.ErrHole, i)
		}
		zone, err := v.AllocZone()
		if err != nil {
			return 0, err
		}
		if err := v.writeZone(zone, make([]byte, BlockSize), "indirect block"); err != nil {
			return 0, err
		}
		ino.Zone[IndirectZone] = zone
		glog.V(2).Infof("new indirect block in zone %d", zone)
	}

	indirect, err := v.readZone(ino.Zone[IndirectZone], "indirect block")
	if err != nil {
		return 0, err
	}

	pos := (i - DirectZones) * 2
	zone := binary.LittleEndian.Uint16(indirect[pos:])
	if zone != 0 {
		return zone, nil
	}
	if !alloc {
		return 0, checkpoint.Errorf("%w: block %d", diskerr.ErrHole, i)
	}

	if zone, err = v.AllocZone(); err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint16(indirect[pos:], zone)
	if err := v.writeZone(ino.Zone[IndirectZone], indirect, "indirect block"); err != nil {
		return 0, err
	}
	return zone, nil
}

// ReadDataBlock reads the logical block i of the file or directory ino.
func (v *Volume) ReadDataBlock(i int, ino *Inode) ([]byte, error) {
	zone, err := v.zoneFor(i, ino, false)
	if err != nil {
		return nil, err
	}
	return v.readZone(zone, "data block")
}

// WriteDataBlock writes buf as logical block i of ino. Missing zones are
// allocated and recorded in ino, so ino has to be written afterwards.
// A buf shorter than BlockSize is padded with zeros.
func (v *Volume) WriteDataBlock(i int, ino *Inode, buf []byte) error {
	if len(buf) > BlockSize {
		return checkpoint.Errorf("%w: %d bytes do not fit into a block", diskerr.ErrShortWrite, len(buf))
	}

	zone, err := v.zoneFor(i, ino, true)
	if err != nil {
		return err
	}

	if len(buf) < BlockSize {
		padded := make([]byte, BlockSize)
		copy(padded, buf)
		buf = padded
	}
	return v.writeZone(zone, buf, "data block")
}
