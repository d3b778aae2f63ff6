package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
)

// Directory is an in-memory copy of a directory table.
// Entries may be modified and written back with CloseDirectory.
type Directory struct {
	Name string

	// Cluster is the first cluster of the table, 0 for the root directory.
	Cluster uint16

	// Parent is the first cluster of the table the directory was found in.
	Parent uint16

	Entries []DirEntry

	// clusters the table was loaded from, in chain order.
	clusters []uint16
}

// Size returns the size of the table in bytes.
func (d *Directory) Size() int64 {
	return int64(len(d.Entries)) * DirEntrySize
}

// OpenDirectory resolves an absolute path to a directory table.
// "/" is the root directory. Every other segment is matched by matchFATName
// against the directory entries of the level above.
func (v *Volume) OpenDirectory(path string) (*Directory, error) {
	root, err := v.ReadDirectory(0)
	if err != nil {
		return nil, err
	}
	root.Name = "/"

	var segments []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	if len(segments) == 0 {
		return root, nil
	}

	d, err := v.scanSubDirectories(root, segments)
	if err != nil {
		return nil, checkpoint.Wrap(err, errOpenDirectory(path))
	}
	return d, nil
}

// scanSubDirectories descends one segment per call.
func (v *Volume) scanSubDirectories(current *Directory, segments []string) (*Directory, error) {
	for _, e := range current.Entries {
		if e.IsFree() || e.IsLongName() || !e.IsDir() {
			continue
		}
		if !matchFATName(segments[0], &e) {
			continue
		}

		glog.V(2).Infof("matched %q with %q at cluster %d", segments[0], e.ShortName(), e.Start)

		d, err := v.ReadDirectory(e.Start)
		if err != nil {
			return nil, err
		}
		d.Name = e.ShortName()
		d.Parent = current.Cluster

		if len(segments) == 1 {
			return d, nil
		}
		return v.scanSubDirectories(d, segments[1:])
	}

	return nil, checkpoint.Errorf("%w: %q", diskerr.ErrPathNotFound, segments[0])
}

// matchFATName is the only place which decides whether a path segment names a
// FAT entry. The segment is compared, upper cased, as a prefix of the 11 byte
// name field, so "DOC" matches "DOCS       " as well as "DOC        ".
func matchFATName(segment string, e *DirEntry) bool {
	if len(segment) == 0 || len(segment) > len(e.Name)+len(e.Ext) {
		return false
	}

	raw := make([]byte, 0, len(e.Name)+len(e.Ext))
	raw = append(raw, e.Name[:]...)
	raw = append(raw, e.Ext[:]...)
	return bytes.HasPrefix(raw, []byte(strings.ToUpper(segment)))
}

// ReadDirectory loads the whole directory table stored in the chain starting at
// cluster. Cluster 0 loads the root directory.
func (v *Volume) ReadDirectory(cluster uint16) (*Directory, error) {
	d := &Directory{Cluster: cluster}

	var raw []byte
	c := v.FollowChain(cluster)
	for c.Next() {
		d.clusters = append(d.clusters, c.Cluster())
		raw = append(raw, c.Bytes()...)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	entries, err := DecodeEntries(raw)
	if err != nil {
		return nil, err
	}
	d.Entries = entries
	return d, nil
}

// CloseDirectory writes the table back to the clusters it was loaded from and
// then writes the FAT to all FAT copies.
// The number of entries must not have changed: tables are not grown or shrunk.
func (v *Volume) CloseDirectory(d *Directory) error {
	capacity := v.geo.ClusterSize * int64(len(d.clusters))
	if d.Cluster == 0 {
		capacity = v.geo.RootSize
	}
	if d.Size() != capacity {
		return checkpoint.Errorf("%w: directory %q holds %d bytes, got %d", diskerr.ErrResourceExhausted, d.Name, capacity, d.Size())
	}

	raw, err := EncodeEntries(d.Entries)
	if err != nil {
		return err
	}

	for i, cluster := range d.clusters {
		size := v.geo.ClusterSize
		if cluster == 0 {
			size = v.geo.RootSize
		}
		off := int64(i) * v.geo.ClusterSize
		if err := v.WriteCluster(cluster, raw[off:off+size]); err != nil {
			return err
		}
	}

	return v.PersistTable()
}

// DecodeEntries splits raw into directory entries. Trailing bytes which do not
// form a whole entry are ignored.
func DecodeEntries(raw []byte) ([]DirEntry, error) {
	entries := make([]DirEntry, len(raw)/DirEntrySize)
	if len(entries) == 0 {
		return entries, nil
	}

	err := binary.Read(bytes.NewReader(raw[:len(entries)*DirEntrySize]), binary.LittleEndian, entries)
	return entries, checkpoint.From(err)
}

// EncodeEntries is the reverse of DecodeEntries.
func EncodeEntries(entries []DirEntry) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(entries)*DirEntrySize))
	if err := binary.Write(buf, binary.LittleEndian, entries); err != nil {
		return nil, checkpoint.From(err)
	}
	return buf.Bytes(), nil
}

func errOpenDirectory(path string) error {
	return fmt.Errorf("could not open directory %q", path)
}
