// Package fatimage builds small FAT16 volume images in memory. It is used by
// tests which need a real volume to read from.
package fatimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/aligator/fat2minix/fat"
)

const (
	// unusableClusters are the first two FAT entries, which hold the media
	// descriptor and the end of chain marker.
	unusableClusters = 2

	// endOfChain marks the end of a cluster chain in the FAT.
	endOfChain = uint16(0xFFFF)

	// hardDisk is the media descriptor for a hard disk (as opposed to floppy).
	hardDisk = uint8(0xF8)
)

type node struct {
	name [11]byte
	attr byte

	content []byte
	raw     [][]byte // extra raw entries of a directory, written after all others

	parent   *node
	entries  []*node
	byName   map[string]*node
	clusters []uint16
}

func (n *node) isDir() bool {
	return n.attr&fat.AttrDirectory != 0
}

// Builder collects directories and files and lays them out as a FAT16 volume
// when Image is called. The zero value is not usable, use New.
type Builder struct {
	SectorSize        uint16
	SectorsPerCluster uint8
	NumFATs           uint8
	RootEntries       uint16
	Clusters          int

	// Fragment leaves a free cluster between two clusters of the same chain,
	// so chains are not contiguous.
	Fragment bool

	// EndOfChain is written into FAT entry 1 and at the end of every chain.
	EndOfChain uint16

	// ModTime is stored in every entry.
	ModTime time.Time

	Label string

	root *node
}

// New returns a Builder for a volume with 512 byte sectors and clusters,
// two FATs, 64 root entries and 128 data clusters.
func New() *Builder {
	return &Builder{
		SectorSize:        512,
		SectorsPerCluster: 1,
		NumFATs:           2,
		RootEntries:       64,
		Clusters:          128,
		EndOfChain:        endOfChain,
		ModTime:           time.Date(2021, 6, 15, 10, 30, 0, 0, time.UTC),
		root: &node{
			attr:   fat.AttrDirectory,
			byName: make(map[string]*node),
		},
	}
}

// ShortName converts a name like "hello.txt" into the padded 11 byte form
// "HELLO   TXT". "." and ".." are kept as they are.
func ShortName(name string) ([11]byte, error) {
	var result [11]byte
	copy(result[:], "           ")

	if name == "." || name == ".." {
		copy(result[:], name)
		return result, nil
	}

	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i+1:]
	}
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return result, fmt.Errorf("%q is no valid 8.3 name", name)
	}

	copy(result[:8], strings.ToUpper(base))
	copy(result[8:], strings.ToUpper(ext))
	return result, nil
}

func (b *Builder) dir(path string) (*node, error) {
	cur := b.root
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		key := strings.ToUpper(component)
		if _, ok := cur.byName[key]; !ok {
			name, err := ShortName(component)
			if err != nil {
				return nil, err
			}
			d := &node{
				name:   name,
				attr:   fat.AttrDirectory,
				parent: cur,
				byName: make(map[string]*node),
			}
			cur.entries = append(cur.entries, d)
			cur.byName[key] = d
		}
		next := cur.byName[key]
		if !next.isDir() {
			return nil, fmt.Errorf("path %q invalid: component %q identifies a file", path, component)
		}
		cur = next
	}
	return cur, nil
}

// Mkdir creates the directory at path including all missing parents.
func (b *Builder) Mkdir(path string) error {
	_, err := b.dir(path)
	return err
}

// File adds a regular file. Missing parent directories are created.
func (b *Builder) File(path string, content []byte) error {
	return b.FileWithAttr(path, content, fat.AttrArchive)
}

// FileWithAttr adds a regular file with the given attribute byte.
func (b *Builder) FileWithAttr(path string, content []byte, attr byte) error {
	path = strings.Trim(path, "/")
	dirPath, fileName := "", path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		dirPath, fileName = path[:i], path[i+1:]
	}

	d, err := b.dir(dirPath)
	if err != nil {
		return err
	}

	key := strings.ToUpper(fileName)
	if _, ok := d.byName[key]; ok {
		return fmt.Errorf("%q already exists", path)
	}

	name, err := ShortName(fileName)
	if err != nil {
		return err
	}
	f := &node{
		name:    name,
		attr:    attr,
		content: content,
		parent:  d,
	}
	d.entries = append(d.entries, f)
	d.byName[key] = f
	return nil
}

// Raw appends a raw 32 byte directory entry to the directory at dirPath, e.g.
// a deleted entry or a long name slot.
func (b *Builder) Raw(dirPath string, entry fat.DirEntry) error {
	d, err := b.dir(dirPath)
	if err != nil {
		return err
	}

	raw, err := fat.EncodeEntries([]fat.DirEntry{entry})
	if err != nil {
		return err
	}
	d.raw = append(d.raw, raw)
	return nil
}

// Chain returns the clusters allocated for path by the last call to Image.
// "" or "/" returns the chain of the root directory, which is []uint16{0}.
func (b *Builder) Chain(path string) []uint16 {
	cur := b.root
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		next, ok := cur.byName[strings.ToUpper(component)]
		if !ok {
			return nil
		}
		cur = next
	}
	if cur == b.root {
		return []uint16{0}
	}
	return cur.clusters
}

func (b *Builder) clusterSize() int {
	return int(b.SectorSize) * int(b.SectorsPerCluster)
}

func (b *Builder) tableSize(n *node) int {
	count := len(n.entries) + len(n.raw)
	if n != b.root {
		count += 2 // . and ..
	}
	return count * fat.DirEntrySize
}

// allocate assigns clusters to every directory and file below n, parents
// before children.
func (b *Builder) allocate(n *node, table []uint16, next *int) error {
	var size int
	if n.isDir() {
		size = b.tableSize(n)
	} else {
		size = len(n.content)
	}

	n.clusters = nil
	count := (size + b.clusterSize() - 1) / b.clusterSize()
	for i := 0; i < count; i++ {
		if *next >= len(table) || *next-unusableClusters >= b.Clusters {
			return fmt.Errorf("volume too small: %d clusters", b.Clusters)
		}
		cluster := uint16(*next)
		if len(n.clusters) > 0 {
			table[n.clusters[len(n.clusters)-1]] = cluster
		}
		table[cluster] = b.EndOfChain
		n.clusters = append(n.clusters, cluster)

		*next++
		if b.Fragment {
			*next++
		}
	}

	for _, child := range n.entries {
		if err := b.allocate(child, table, next); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) start(n *node) uint16 {
	if len(n.clusters) == 0 {
		return 0
	}
	return n.clusters[0]
}

func (b *Builder) entry(n *node, name [11]byte, start uint16) fat.DirEntry {
	e := fat.DirEntry{
		Attribute:      n.attr,
		CreateTime:     fat.PackTime(b.ModTime),
		CreateDate:     fat.PackDate(b.ModTime),
		LastAccessDate: fat.PackDate(b.ModTime),
		Time:           fat.PackTime(b.ModTime),
		Date:           fat.PackDate(b.ModTime),
		Start:          start,
	}
	copy(e.Name[:], name[:8])
	copy(e.Ext[:], name[8:])
	if !n.isDir() {
		e.Size = uint32(len(n.content))
	}
	return e
}

func (b *Builder) table(n *node) ([]byte, error) {
	var entries []fat.DirEntry
	if n != b.root {
		dot, _ := ShortName(".")
		dotdot, _ := ShortName("..")
		entries = append(entries, b.entry(n, dot, b.start(n)))

		parentStart := uint16(0)
		if n.parent != b.root {
			parentStart = b.start(n.parent)
		}
		entries = append(entries, b.entry(n.parent, dotdot, parentStart))
	}
	for _, child := range n.entries {
		entries = append(entries, b.entry(child, child.name, b.start(child)))
	}

	raw, err := fat.EncodeEntries(entries)
	if err != nil {
		return nil, err
	}
	for _, r := range n.raw {
		raw = append(raw, r...)
	}
	return raw, nil
}

// Image lays out all directories and files and returns the volume image.
func (b *Builder) Image() ([]byte, error) {
	clusterSize := b.clusterSize()
	sectorSize := int(b.SectorSize)

	if b.tableSize(b.root) > int(b.RootEntries)*fat.DirEntrySize {
		return nil, fmt.Errorf("too many root entries: %d", len(b.root.entries)+len(b.root.raw))
	}

	tableEntries := b.Clusters + unusableClusters
	fatSectors := (tableEntries*2 + sectorSize - 1) / sectorSize
	table := make([]uint16, fatSectors*sectorSize/2)
	table[0] = 0xFF00 | uint16(hardDisk)
	table[1] = b.EndOfChain

	next := unusableClusters
	for _, child := range b.root.entries {
		if err := b.allocate(child, table, &next); err != nil {
			return nil, err
		}
	}

	const reservedSectors = 1
	rootSectors := int(b.RootEntries) * fat.DirEntrySize / sectorSize
	dataSectors := b.Clusters * int(b.SectorsPerCluster)
	totalSectors := reservedSectors + int(b.NumFATs)*fatSectors + rootSectors + dataSectors

	boot := fat.BootSector{
		JumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    b.SectorSize,
		SectorsPerCluster: b.SectorsPerCluster,
		ReservedSectors:   reservedSectors,
		NumFATs:           b.NumFATs,
		RootEntryCount:    b.RootEntries,
		Media:             hardDisk,
		FATSize16:         uint16(fatSectors),
		SectorsPerTrack:   32,
		NumberOfHeads:     64,
		FAT16: fat.FAT16SpecificData{
			DriveNumber:   0x80,
			BootSignature: 0x29,
			VolumeID:      0x12345678,
		},
	}
	copy(boot.OEMName[:], "fatimage")
	copy(boot.FAT16.VolumeLabel[:], fmt.Sprintf("%-11s", strings.ToUpper(b.Label)))
	copy(boot.FAT16.FileSystemType[:], "FAT16   ")
	if totalSectors < 0x10000 {
		boot.TotalSectors16 = uint16(totalSectors)
	} else {
		boot.TotalSectors32 = uint32(totalSectors)
	}

	image := make([]byte, totalSectors*sectorSize)

	var bootBuf bytes.Buffer
	if err := binary.Write(&bootBuf, binary.LittleEndian, boot); err != nil {
		return nil, err
	}
	copy(image, bootBuf.Bytes())
	image[510] = 0x55
	image[511] = 0xAA

	fatOffset := reservedSectors * sectorSize
	for i := 0; i < int(b.NumFATs); i++ {
		off := fatOffset + i*fatSectors*sectorSize
		for j, v := range table {
			binary.LittleEndian.PutUint16(image[off+j*2:], v)
		}
	}

	rootOffset := fatOffset + int(b.NumFATs)*fatSectors*sectorSize
	rootTable, err := b.table(b.root)
	if err != nil {
		return nil, err
	}
	copy(image[rootOffset:], rootTable)

	dataOffset := rootOffset + rootSectors*sectorSize
	var write func(n *node) error
	write = func(n *node) error {
		data := n.content
		if n.isDir() {
			var err error
			if data, err = b.table(n); err != nil {
				return err
			}
		}
		for i, cluster := range n.clusters {
			chunk := data[min(i*clusterSize, len(data)):min((i+1)*clusterSize, len(data))]
			copy(image[dataOffset+(int(cluster)-unusableClusters)*clusterSize:], chunk)
		}
		for _, child := range n.entries {
			if err := write(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, child := range b.root.entries {
		if err := write(child); err != nil {
			return nil, err
		}
	}

	return image, nil
}

// Write builds the image and stores it as name in fs. The returned file is
// open for reading and writing.
func (b *Builder) Write(fs afero.Fs, name string) (afero.File, error) {
	image, err := b.Image()
	if err != nil {
		return nil, err
	}
	if err := afero.WriteFile(fs, name, image, 0644); err != nil {
		return nil, err
	}
	return fs.OpenFile(name, os.O_RDWR, 0)
}
