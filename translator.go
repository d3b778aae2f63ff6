package fat2minix

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
	"github.com/aligator/fat2minix/fat"
	"github.com/aligator/fat2minix/minix"
)

// ErrDirectoryFull means a Minix directory cannot take another entry.
var ErrDirectoryFull = errors.New("directory is full")

// maxDirEntries is the number of entries which fit into the direct zones of a
// directory.
const maxDirEntries = minix.MaxDirectoryBlocks * minix.BlockSize / minix.DirEntrySize

// Options of a translation. The zero value is usable.
type Options struct {
	// UID and GID are stamped on every new inode.
	UID uint16
	GID uint8

	// Location is the time zone the FAT timestamps were written in.
	// Defaults to time.Local.
	Location *time.Location

	// Permission bits of new directories and files, default 0755 and 0644.
	// Read-only FAT files lose the write bits.
	DirMode  os.FileMode
	FileMode os.FileMode
}

// Stats counts what a run did.
type Stats struct {
	Directories int
	Files       int
	Bytes       int64
	Skipped     int
}

// Translator copies the tree of a FAT volume into a Minix volume.
type Translator struct {
	src  *fat.Volume
	dst  *minix.Volume
	opts Options

	// descent holds the start clusters of the directories currently being
	// processed, from the root down.
	descent []uint16

	stats Stats
}

// New prepares a translation from src to dst. Both volumes must stay open
// until Run returns. Closing dst is left to the caller.
func New(src *fat.Volume, dst *minix.Volume, opts Options) *Translator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0755
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0644
	}

	return &Translator{
		src:  src,
		dst:  dst,
		opts: opts,
	}
}

// IsEntryError reports whether err only concerns a single directory entry.
// Such entries are skipped, every other error aborts the run.
func IsEntryError(err error) bool {
	return errors.Is(err, diskerr.ErrPathNotFound) ||
		errors.Is(err, diskerr.ErrUnsupportedIndirection) ||
		errors.Is(err, diskerr.ErrNameTooLong) ||
		errors.Is(err, diskerr.ErrBadChain) ||
		errors.Is(err, diskerr.ErrHole) ||
		errors.Is(err, ErrDirectoryFull) ||
		errors.Is(err, fs.ErrExist)
}

// Run copies everything, starting with the FAT root directory which is mapped
// onto the Minix root directory.
func (t *Translator) Run() (Stats, error) {
	t.stats = Stats{}
	t.descent = nil
	err := t.processDirectory(0, "/")
	return t.stats, err
}

// processDirectory copies the directory table stored in the chain starting at
// cluster into the Minix directory minixPath, one cluster at a time.
func (t *Translator) processDirectory(cluster uint16, minixPath string) error {
	t.descent = append(t.descent, cluster)
	defer func() {
		t.descent = t.descent[:len(t.descent)-1]
	}()

	chain := t.src.FollowChain(cluster)
	for chain.Next() {
		entries, err := fat.DecodeEntries(chain.Bytes())
		if err != nil {
			return err
		}
		if err := t.copyDirEntries(minixPath, entries); err != nil {
			return err
		}
	}
	return chain.Err()
}

// copyDirEntries adds entries to the Minix directory minixPath and writes it.
// Only then the subdirectories found in entries are processed.
func (t *Translator) copyDirEntries(minixPath string, entries []fat.DirEntry) error {
	dir, err := t.dst.OpenDirectory(minixPath)
	if err != nil {
		return err
	}

	var subDirs []fat.DirEntry
	for i := range entries {
		e := &entries[i]
		if e.IsFree() || e.IsLongName() || e.IsVolumeLabel() {
			continue
		}

		name := e.FileName()
		switch {
		case e.IsDot() && (name == "." || name == ".."):
			err = t.addDotEntry(dir, name)
		case e.IsDir():
			err = t.createDir(dir, e, name)
			if err == nil {
				subDirs = append(subDirs, *e)
			}
		default:
			err = t.createFile(dir, e, name)
		}

		if err != nil {
			if !IsEntryError(err) {
				return err
			}
			t.skip(path.Join(minixPath, name), err)
			err = nil
		}
	}

	if err := t.dst.CloseDirectory(dir); err != nil {
		return err
	}

	for i := range subDirs {
		childPath := path.Join(minixPath, subDirs[i].FileName())
		if err := t.processDirectory(subDirs[i].Start, childPath); err != nil {
			if !IsEntryError(err) {
				return err
			}
			t.skip(childPath, err)
		}
	}
	return nil
}

func (t *Translator) skip(p string, err error) {
	t.stats.Skipped++
	glog.Warningf("skipping %s: %v", p, err)
}

// addDotEntry links "." to the directory itself and ".." to its parent.
// Directories which already have the entry are left alone.
func (t *Translator) addDotEntry(dir *minix.Directory, name string) error {
	if _, ok := dir.Lookup(name); ok {
		return nil
	}

	target := dir.Ino
	if name == ".." {
		target = dir.Parent
	}
	if err := dir.Add(name, target); err != nil {
		return err
	}
	dir.Inode.NLinks++
	return nil
}

// checkDirChain fails if the chain of a directory entry cannot be a
// subdirectory: cluster 0 and 1 are no data clusters, and a chain already
// being processed above would be copied over and over again.
func (t *Translator) checkDirChain(e *fat.DirEntry, name string) error {
	if e.Start < 2 {
		return checkpoint.Errorf("%w: directory %q starts at cluster %d", diskerr.ErrBadChain, name, e.Start)
	}
	for _, c := range t.descent {
		if c == e.Start {
			return checkpoint.Errorf("%w: directory %q loops back to cluster %d", diskerr.ErrBadChain, name, e.Start)
		}
	}
	return nil
}

// checkNewEntry fails if dir cannot take an entry called name.
func checkNewEntry(dir *minix.Directory, name string) error {
	if _, err := minix.NewDirEntry(0, name); err != nil {
		return err
	}
	if _, ok := dir.Lookup(name); ok {
		return checkpoint.Errorf("%w: %q in %s", fs.ErrExist, name, dir.Path)
	}
	if len(dir.Entries) >= maxDirEntries {
		return checkpoint.Errorf("%w: %s has %d entries (%w)", ErrDirectoryFull, dir.Path, len(dir.Entries), diskerr.ErrResourceExhausted)
	}
	return nil
}

// createDir creates an empty directory inode. Its size and link count are set
// when it is populated.
func (t *Translator) createDir(dir *minix.Directory, e *fat.DirEntry, name string) error {
	if err := checkNewEntry(dir, name); err != nil {
		return err
	}
	if err := t.checkDirChain(e, name); err != nil {
		return err
	}

	n, err := t.dst.AllocInode()
	if err != nil {
		return err
	}
	ino := minix.Inode{
		Mode: minix.ModeDirectory | uint16(t.opts.DirMode.Perm()),
		UID:  t.opts.UID,
		GID:  t.opts.GID,
		Time: MinixTime(e.Date, e.Time, t.opts.Location),
	}
	if err := t.dst.WriteInode(n, &ino); err != nil {
		return err
	}

	if err := dir.Add(name, n); err != nil {
		return err
	}
	dir.Inode.NLinks++
	t.stats.Directories++

	glog.V(1).Infof("create directory %s (inode %d)", path.Join(dir.Path, name), n)
	return nil
}

// createFile creates the inode of a regular file and copies its content.
func (t *Translator) createFile(dir *minix.Directory, e *fat.DirEntry, name string) error {
	if err := checkNewEntry(dir, name); err != nil {
		return err
	}
	if blocks := (int64(e.Size) + minix.BlockSize - 1) / minix.BlockSize; blocks > minix.MaxFileBlocks {
		return checkpoint.Errorf("%w: %q has %d bytes, at most %d are supported",
			diskerr.ErrUnsupportedIndirection, name, e.Size, minix.MaxFileBlocks*minix.BlockSize)
	}

	perm := t.opts.FileMode.Perm()
	if e.IsReadOnly() {
		perm &^= 0222
	}

	n, err := t.dst.AllocInode()
	if err != nil {
		return err
	}
	ino := minix.Inode{
		Mode:   minix.ModeRegular | uint16(perm),
		UID:    t.opts.UID,
		GID:    t.opts.GID,
		Size:   e.Size,
		Time:   MinixTime(e.Date, e.Time, t.opts.Location),
		NLinks: 1,
	}

	if err := t.copyContents(&ino, e); err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("could not copy %q", name))
	}
	if err := t.dst.WriteInode(n, &ino); err != nil {
		return err
	}

	if err := dir.Add(name, n); err != nil {
		return err
	}
	t.stats.Files++

	glog.V(1).Infof("create file %s (inode %d, %d bytes)", path.Join(dir.Path, name), n, e.Size)
	return nil
}

// copyContents copies the cluster chain of e block by block into new zones
// of ino. Empty files get no zones.
func (t *Translator) copyContents(ino *minix.Inode, e *fat.DirEntry) error {
	if e.Size == 0 {
		return nil
	}

	f, err := t.src.OpenFile(*e, t.opts.Location)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, minix.BlockSize)
	remaining := f.Size()
	for i := 0; remaining > 0; i++ {
		size := int64(len(buf))
		if remaining < size {
			size = remaining
		}

		if _, err := io.ReadFull(f, buf[:size]); err != nil {
			return checkpoint.From(err)
		}
		if err := t.dst.WriteDataBlock(i, ino, buf[:size]); err != nil {
			return err
		}

		remaining -= size
		t.stats.Bytes += size
	}
	return nil
}
