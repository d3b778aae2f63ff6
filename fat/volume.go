// Package fat reads FAT16 volumes: the boot sector, the File Allocation Table,
// directory tables and the cluster chains of files and subdirectories.
//
// The whole FAT is held in memory while the volume is open. Changes to it, and
// to directory tables, are written back when a directory is closed.
package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
	"github.com/aligator/fat2minix/diskio"
)

// maxClusterSize is the largest cluster size FAT allows.
const maxClusterSize = 32 * 1024

// Geometry contains the offsets and sizes derived from the boot sector.
// They are computed once in Open and never changed afterwards.
type Geometry struct {
	SectorSize   int64
	ClusterSize  int64
	NumFATs      int64
	FATOffset    int64 // first FAT copy
	FATSize      int64 // bytes per FAT copy
	RootOffset   int64
	RootSize     int64
	DataOffset   int64
	TotalSectors uint32
}

// Volume is an opened FAT16 volume.
type Volume struct {
	dev  diskio.Device
	boot BootSector
	geo  Geometry

	table []uint16

	// endOfChain is the value which terminates a cluster chain. It is taken from
	// table[1] when the volume is opened instead of using a fixed marker like
	// 0xFFFF. On volumes written by common tools both are the same.
	endOfChain uint16
}

// Open reads the boot sector and the FAT of the volume in dev.
// The boot sector is validated; use OpenSkipChecks for non-standard volumes.
func Open(dev diskio.Device) (*Volume, error) {
	return open(dev, true)
}

// OpenSkipChecks works like Open but skips the boot sector validation.
// Use with caution!
func OpenSkipChecks(dev diskio.Device) (*Volume, error) {
	return open(dev, false)
}

func open(dev diskio.Device, check bool) (*Volume, error) {
	v := &Volume{dev: dev}

	buf := make([]byte, binary.Size(BootSector{}))
	if err := diskio.ReadAt(dev, 0, buf, "boot sector"); err != nil {
		return nil, err
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v.boot); err != nil {
		return nil, checkpoint.From(err)
	}

	if check {
		if err := validate(&v.boot); err != nil {
			return nil, err
		}
	}

	geo, err := computeGeometry(&v.boot)
	if err != nil {
		return nil, err
	}
	v.geo = geo

	if glog.V(1) {
		glog.Infof("FAT volume %q: sector size %d, cluster size %d, %d FAT(s) of %d bytes, %d root entries",
			v.Label(), geo.SectorSize, geo.ClusterSize, geo.NumFATs, geo.FATSize, v.boot.RootEntryCount)
	}

	// Loading the table is part of opening the volume.
	if err := v.loadTable(); err != nil {
		return nil, err
	}

	return v, nil
}

func validate(bs *BootSector) error {
	if !(bs.JumpBoot[0] == 0xEB && bs.JumpBoot[2] == 0x90) && bs.JumpBoot[0] != 0xE9 {
		return checkpoint.Errorf("%w: no valid jump instruction at the beginning", diskerr.ErrInvalidGeometry)
	}

	switch bs.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return checkpoint.Errorf("%w: invalid sector size %d", diskerr.ErrInvalidGeometry, bs.BytesPerSector)
	}

	// Sectors per cluster has to be a power of two and the cluster must not be bigger than 32K.
	if bits.OnesCount8(bs.SectorsPerCluster) != 1 || int(bs.BytesPerSector)*int(bs.SectorsPerCluster) > maxClusterSize {
		return checkpoint.Errorf("%w: invalid sectors per cluster %d", diskerr.ErrInvalidGeometry, bs.SectorsPerCluster)
	}

	if bs.ReservedSectors == 0 {
		return checkpoint.Errorf("%w: invalid reserved sector count", diskerr.ErrInvalidGeometry)
	}

	if bs.NumFATs == 0 {
		return checkpoint.Errorf("%w: no FAT", diskerr.ErrInvalidGeometry)
	}

	if bs.RootEntryCount == 0 || (int(bs.RootEntryCount)*DirEntrySize)%int(bs.BytesPerSector) != 0 {
		return checkpoint.Errorf("%w: invalid root entry count %d", diskerr.ErrInvalidGeometry, bs.RootEntryCount)
	}

	if bs.FATSize16 == 0 {
		return checkpoint.Errorf("%w: FAT size is 0, FAT32 is not supported", diskerr.ErrInvalidGeometry)
	}

	return nil
}

func computeGeometry(bs *BootSector) (Geometry, error) {
	g := Geometry{
		SectorSize: int64(bs.BytesPerSector),
		NumFATs:    int64(bs.NumFATs),
	}
	g.ClusterSize = g.SectorSize * int64(bs.SectorsPerCluster)
	g.FATOffset = g.SectorSize * int64(bs.ReservedSectors)
	g.FATSize = g.SectorSize * int64(bs.FATSize16)
	g.RootOffset = g.FATOffset + g.NumFATs*g.FATSize
	g.RootSize = int64(bs.RootEntryCount) * DirEntrySize
	g.DataOffset = g.RootOffset + g.RootSize

	if bs.TotalSectors16 != 0 {
		g.TotalSectors = uint32(bs.TotalSectors16)
	} else {
		g.TotalSectors = bs.TotalSectors32
	}

	// Even without validation the buffers derived from these must not be empty.
	if g.ClusterSize <= 0 || g.FATSize < 4 || g.RootSize <= 0 {
		return g, checkpoint.Errorf("%w: cluster size %d, FAT size %d, root size %d",
			diskerr.ErrAllocation, g.ClusterSize, g.FATSize, g.RootSize)
	}

	return g, nil
}

func (v *Volume) loadTable() error {
	buf := make([]byte, v.geo.FATSize)
	if err := diskio.ReadAt(v.dev, v.geo.FATOffset, buf, "FAT"); err != nil {
		return err
	}

	v.table = make([]uint16, len(buf)/2)
	for i := range v.table {
		v.table[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	v.endOfChain = v.table[1]

	glog.V(2).Infof("loaded FAT with %d entries, end of chain marker %#04x", len(v.table), v.endOfChain)
	return nil
}

// PersistTable writes the in-memory FAT to every FAT copy of the volume.
func (v *Volume) PersistTable() error {
	buf := make([]byte, len(v.table)*2)
	for i, entry := range v.table {
		binary.LittleEndian.PutUint16(buf[i*2:], entry)
	}

	for i := int64(0); i < v.geo.NumFATs; i++ {
		if err := diskio.WriteAt(v.dev, v.geo.FATOffset+i*v.geo.FATSize, buf, "FAT"); err != nil {
			return err
		}
	}
	return nil
}

// Geometry returns the layout derived from the boot sector.
func (v *Volume) Geometry() Geometry {
	return v.geo
}

// BootSector returns a copy of the decoded boot sector.
func (v *Volume) BootSector() BootSector {
	return v.boot
}

// Label returns the volume label from the boot sector.
func (v *Volume) Label() string {
	return string(bytes.TrimRight(v.boot.FAT16.VolumeLabel[:], " \x00"))
}

// EndOfChain returns the end of chain marker used by this volume.
func (v *Volume) EndOfChain() uint16 {
	return v.endOfChain
}

// Next returns the FAT entry of cluster, i.e. the cluster following it in its chain.
func (v *Volume) Next(cluster uint16) (uint16, error) {
	if err := v.checkCluster(cluster); err != nil {
		return 0, err
	}
	return v.table[cluster], nil
}

func (v *Volume) checkCluster(cluster uint16) error {
	if cluster < 2 || int(cluster) >= len(v.table) {
		return checkpoint.Errorf("%w: cluster %d is outside of the FAT (2-%d)", diskerr.ErrBadChain, cluster, len(v.table)-1)
	}
	return nil
}

// clusterLocation returns the byte offset and size of a cluster.
// Cluster 0 is the root directory region.
func (v *Volume) clusterLocation(cluster uint16) (int64, int64, error) {
	if cluster == 0 {
		return v.geo.RootOffset, v.geo.RootSize, nil
	}
	if err := v.checkCluster(cluster); err != nil {
		return 0, 0, err
	}
	return v.geo.DataOffset + int64(cluster-2)*v.geo.ClusterSize, v.geo.ClusterSize, nil
}

// ReadCluster reads a whole cluster. Cluster 0 returns the root directory region.
func (v *Volume) ReadCluster(cluster uint16) ([]byte, error) {
	off, size, err := v.clusterLocation(cluster)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if err := diskio.ReadAt(v.dev, off, buf, "cluster"); err != nil {
		return nil, checkpoint.Wrap(err, errClusterf("read", cluster))
	}
	return buf, nil
}

// WriteCluster writes buf to a cluster. buf must have exactly the size of the
// cluster (or of the root directory region for cluster 0).
func (v *Volume) WriteCluster(cluster uint16, buf []byte) error {
	off, size, err := v.clusterLocation(cluster)
	if err != nil {
		return err
	}
	if int64(len(buf)) != size {
		return checkpoint.Errorf("%w: cluster %d needs %d bytes, got %d", diskerr.ErrShortWrite, cluster, size, len(buf))
	}

	if err := diskio.WriteAt(v.dev, off, buf, "cluster"); err != nil {
		return checkpoint.Wrap(err, errClusterf("write", cluster))
	}
	return nil
}

func errClusterf(op string, cluster uint16) error {
	return fmt.Errorf("could not %s cluster %d", op, cluster)
}
