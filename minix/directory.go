package minix

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
)

// NewDirEntry creates a directory entry. The name must fit into NameLen bytes.
func NewDirEntry(ino uint16, name string) (DirEntry, error) {
	e := DirEntry{Ino: ino}
	if len(name) > NameLen {
		return e, checkpoint.Errorf("%w: %q has %d bytes, at most %d are allowed", diskerr.ErrNameTooLong, name, len(name), NameLen)
	}
	copy(e.Name[:], name)
	return e, nil
}

// ReadDirectoryTable reads all entries of the directory ino.
// Only the direct zones are used for directory tables.
func (v *Volume) ReadDirectoryTable(ino *Inode) ([]DirEntry, error) {
	blocks := ino.Blocks()
	if blocks > MaxDirectoryBlocks {
		return nil, checkpoint.Errorf("%w: directory of %d bytes needs %d blocks, at most %d are supported",
			diskerr.ErrResourceExhausted, ino.Size, blocks, MaxDirectoryBlocks)
	}

	raw := make([]byte, 0, blocks*BlockSize)
	for i := 0; i < blocks; i++ {
		block, err := v.ReadDataBlock(i, ino)
		if err != nil {
			return nil, err
		}
		raw = append(raw, block...)
	}

	entries := make([]DirEntry, int(ino.Size)/DirEntrySize)
	if len(entries) == 0 {
		return entries, nil
	}
	if err := binary.Read(bytes.NewReader(raw[:len(entries)*DirEntrySize]), binary.LittleEndian, entries); err != nil {
		return nil, checkpoint.From(err)
	}
	return entries, nil
}

// WriteDirectoryTable writes entries into the direct zones of ino, allocating
// zones where needed. ino.Size is not changed.
func (v *Volume) WriteDirectoryTable(ino *Inode, entries []DirEntry) error {
	size := len(entries) * DirEntrySize
	blocks := (size + BlockSize - 1) / BlockSize
	if blocks > MaxDirectoryBlocks {
		return checkpoint.Errorf("%w: %d entries need %d blocks, at most %d are supported",
			diskerr.ErrResourceExhausted, len(entries), blocks, MaxDirectoryBlocks)
	}

	buf := bytes.NewBuffer(make([]byte, 0, blocks*BlockSize))
	if err := binary.Write(buf, binary.LittleEndian, entries); err != nil {
		return checkpoint.From(err)
	}
	raw := buf.Bytes()

	for i := 0; i < blocks; i++ {
		end := (i + 1) * BlockSize
		if end > len(raw) {
			end = len(raw)
		}
		if err := v.WriteDataBlock(i, ino, raw[i*BlockSize:end]); err != nil {
			return err
		}
	}
	return nil
}

// matchMinixName is the only place which decides whether a path segment names
// a directory entry. Names have to be equal.
func matchMinixName(segment string, e *DirEntry) bool {
	return e.Ino != 0 && e.FileName() == segment
}

// ResolvePath finds the inode of an absolute path. It returns the inode, its
// number and the number of the directory containing it. The root directory
// is its own parent.
func (v *Volume) ResolvePath(path string) (Inode, uint16, uint16, error) {
	current := uint16(RootIno)
	parent := uint16(RootIno)

	ino, err := v.ReadInode(current)
	if err != nil {
		return ino, 0, 0, err
	}

	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}

		if !ino.IsDir() {
			return ino, 0, 0, checkpoint.Errorf("%w: %q in %q", diskerr.ErrNotDirectory, segment, path)
		}
		entries, err := v.ReadDirectoryTable(&ino)
		if err != nil {
			return ino, 0, 0, err
		}

		found := false
		for i := range entries {
			if matchMinixName(segment, &entries[i]) {
				parent, current = current, entries[i].Ino
				found = true
				break
			}
		}
		if !found {
			return ino, 0, 0, checkpoint.Errorf("%w: %q in %q", diskerr.ErrPathNotFound, segment, path)
		}

		if ino, err = v.ReadInode(current); err != nil {
			return ino, 0, 0, err
		}
	}

	return ino, current, parent, nil
}

// Directory is an opened directory table.
type Directory struct {
	Path   string
	Ino    uint16
	Parent uint16
	Inode  Inode

	Entries []DirEntry
}

// Add appends an entry. Existing entries are not checked.
func (d *Directory) Add(name string, ino uint16) error {
	e, err := NewDirEntry(ino, name)
	if err != nil {
		return err
	}
	d.Entries = append(d.Entries, e)
	return nil
}

// Lookup returns the entry with the given name.
func (d *Directory) Lookup(name string) (DirEntry, bool) {
	for i := range d.Entries {
		if matchMinixName(name, &d.Entries[i]) {
			return d.Entries[i], true
		}
	}
	return DirEntry{}, false
}

// OpenDirectory resolves path and reads its directory table.
func (v *Volume) OpenDirectory(path string) (*Directory, error) {
	ino, n, parent, err := v.ResolvePath(path)
	if err != nil {
		return nil, checkpoint.Wrap(err, errOpenDirectory(path))
	}
	if !ino.IsDir() {
		return nil, checkpoint.Errorf("%w: %q", diskerr.ErrNotDirectory, path)
	}

	entries, err := v.ReadDirectoryTable(&ino)
	if err != nil {
		return nil, checkpoint.Wrap(err, errOpenDirectory(path))
	}

	glog.V(2).Infof("opened directory %q, inode %d, %d entries", path, n, len(entries))
	return &Directory{
		Path:    path,
		Ino:     n,
		Parent:  parent,
		Inode:   ino,
		Entries: entries,
	}, nil
}

// CloseDirectory sets the size of the directory from its entries, writes the
// table and then the inode.
func (v *Volume) CloseDirectory(d *Directory) error {
	d.Inode.Size = uint32(len(d.Entries) * DirEntrySize)
	if err := v.WriteDirectoryTable(&d.Inode, d.Entries); err != nil {
		return checkpoint.Wrap(err, errCloseDirectory(d.Path))
	}
	if err := v.WriteInode(d.Ino, &d.Inode); err != nil {
		return checkpoint.Wrap(err, errCloseDirectory(d.Path))
	}
	return nil
}

func errOpenDirectory(path string) error {
	return fmt.Errorf("could not open directory %q", path)
}

func errCloseDirectory(path string) error {
	return fmt.Errorf("could not close directory %q", path)
}
