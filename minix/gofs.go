package minix

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/aligator/fat2minix/diskerr"
)

// FS is a read-only fs.FS view of a volume.
type FS struct {
	v *Volume
}

// NewFS wraps an opened volume. Nothing is written through it.
func NewFS(v *Volume) *FS {
	return &FS{v: v}
}

func (f *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	resolve := "/" + name
	if name == "." {
		resolve = "/"
	}
	ino, _, _, err := f.v.ResolvePath(resolve)
	if err != nil {
		if errors.Is(err, diskerr.ErrPathNotFound) || errors.Is(err, diskerr.ErrNotDirectory) {
			err = fs.ErrNotExist
		}
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	file := &GoFile{
		v:    f.v,
		info: inodeInfo{name: path.Base(name), ino: ino},
	}
	return file, nil
}

type inodeInfo struct {
	name string
	ino  Inode
}

func (i inodeInfo) Name() string {
	return i.name
}

func (i inodeInfo) Size() int64 {
	return int64(i.ino.Size)
}

func (i inodeInfo) Mode() fs.FileMode {
	mode := fs.FileMode(i.ino.Mode & ModePerm)
	if i.ino.IsDir() {
		mode |= fs.ModeDir
	} else if !i.ino.IsRegular() {
		mode |= fs.ModeIrregular
	}
	return mode
}

func (i inodeInfo) ModTime() time.Time {
	return time.Unix(int64(i.ino.Time), 0)
}

func (i inodeInfo) IsDir() bool {
	return i.ino.IsDir()
}

// Sys returns the Inode.
func (i inodeInfo) Sys() interface{} {
	return i.ino
}

type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile is an opened file or directory of an FS.
type GoFile struct {
	v    *Volume
	info inodeInfo

	offset int64

	// entries is loaded by the first ReadDir.
	entries []fs.DirEntry
	loaded  bool
}

func (g *GoFile) Stat() (fs.FileInfo, error) {
	return g.info, nil
}

func (g *GoFile) Close() error {
	if g.v == nil {
		return fs.ErrClosed
	}
	g.v = nil
	return nil
}

func (g *GoFile) Read(p []byte) (int, error) {
	if g.v == nil {
		return 0, fs.ErrClosed
	}
	if g.info.IsDir() {
		return 0, &fs.PathError{Op: "read", Path: g.info.name, Err: errors.New("is a directory")}
	}

	size := g.info.Size()
	read := 0
	for read < len(p) && g.offset < size {
		block, err := g.v.ReadDataBlock(int(g.offset/BlockSize), &g.info.ino)
		if errors.Is(err, diskerr.ErrHole) {
			block, err = make([]byte, BlockSize), nil
		}
		if err != nil {
			return read, err
		}

		start := g.offset % BlockSize
		end := int64(BlockSize)
		if rest := size - g.offset + start; rest < end {
			end = rest
		}
		n := copy(p[read:], block[start:end])
		read += n
		g.offset += int64(n)
	}

	if read == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return read, nil
}

// ReadDir lists the directory without "." and "..".
func (g *GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if g.v == nil {
		return nil, fs.ErrClosed
	}
	if !g.info.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: g.info.name, Err: errors.New("not a directory")}
	}

	if !g.loaded {
		entries, err := g.v.ReadDirectoryTable(&g.info.ino)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			name := entries[i].FileName()
			if entries[i].Ino == 0 || name == "." || name == ".." {
				continue
			}
			ino, err := g.v.ReadInode(entries[i].Ino)
			if err != nil {
				return nil, err
			}
			g.entries = append(g.entries, GoDirEntry{inodeInfo{name: name, ino: ino}})
		}
		g.loaded = true
	}

	if n <= 0 {
		rest := g.entries
		g.entries = nil
		if rest == nil {
			rest = []fs.DirEntry{}
		}
		return rest, nil
	}

	if len(g.entries) == 0 {
		return nil, io.EOF
	}
	if n > len(g.entries) {
		n = len(g.entries)
	}
	rest := g.entries[:n]
	g.entries = g.entries[n:]
	return rest, nil
}
