package fat

import (
	"os"
	"strings"
	"time"
)

// ShortName returns the 8.3 name exactly as stored, with the padding removed,
// e.g. "HELLO.TXT".
func (e *DirEntry) ShortName() string {
	name := strings.TrimRight(string(e.Name[:]), " ")
	ext := strings.TrimRight(string(e.Ext[:]), " ")

	if ext != "" {
		name += "."
	}

	return name + ext
}

// FileName returns the lower-cased 8.3 name, e.g. "hello.txt". This is the name
// an entry gets on the Minix side.
func (e *DirEntry) FileName() string {
	return strings.ToLower(e.ShortName())
}

// FileInfo describes the entry as os.FileInfo. Timestamps are interpreted in loc.
func (e *DirEntry) FileInfo(loc *time.Location) os.FileInfo {
	return entryFileInfo{entry: *e, loc: loc}
}

type entryFileInfo struct {
	entry DirEntry
	loc   *time.Location
}

func (e entryFileInfo) Name() string {
	return e.entry.FileName()
}

func (e entryFileInfo) Size() int64 {
	return int64(e.entry.Size)
}

func (e entryFileInfo) Mode() os.FileMode {
	if e.IsDir() {
		return os.ModeDir | 0755
	}
	if e.entry.IsReadOnly() {
		return 0444
	}
	return 0644
}

func (e entryFileInfo) ModTime() time.Time {
	return ParseDateTime(e.entry.Date, e.entry.Time, e.loc)
}

func (e entryFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

func (e entryFileInfo) Sys() interface{} {
	return e.entry
}
