package fat

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
)

// These errors may occur while processing a file.
var (
	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
)

// fatFileFs provides all methods needed from a fat volume for File.
// It mainly exists to be able to mock the Volume in tests.
// Generated mock using mockgen:
//
//	mockgen -source=file.go -destination=file_mock_test.go -package fat
type fatFileFs interface {
	readFileAt(cluster uint16, fileSize int64, offset int64, readSize int64) ([]byte, error)
}

// File reads the content of a regular file from its cluster chain.
// It implements io.Reader, io.ReaderAt, io.Seeker and io.Closer.
type File struct {
	fs    fatFileFs
	entry DirEntry
	loc   *time.Location

	offset int64
}

// OpenFile opens the file described by e, which has to be an entry of a
// directory table of v. Timestamps reported by Stat are interpreted in loc.
// May return syscall.EISDIR if e is a directory.
func (v *Volume) OpenFile(e DirEntry, loc *time.Location) (*File, error) {
	if e.IsDir() || e.IsDot() {
		return nil, checkpoint.Errorf("%w: %s", syscall.EISDIR, e.ShortName())
	}

	return &File{
		fs:    v,
		entry: e,
		loc:   loc,
	}, nil
}

func (f *File) Close() error {
	f.fs = nil
	f.entry = DirEntry{}
	f.loc = nil
	f.offset = 0

	return nil
}

func (f *File) Size() int64 {
	return int64(f.entry.Size)
}

func (f *File) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Reading a file if the size has been already reached, makes no sense.
	if f.Size() <= f.offset {
		return 0, io.EOF
	}

	readSize := int64(len(p))
	if rest := f.Size() - f.offset; rest < readSize {
		readSize = rest
	}

	data, err := f.fs.readFileAt(f.entry.Start, f.Size(), f.offset, readSize)
	if data != nil {
		copy(p, data)
	}

	// Seek even if an error occurred, errors from reading are used even if seek also errors.
	_, seekErr := f.Seek(int64(len(data)), io.SeekCurrent)

	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}

	if seekErr != nil {
		return len(data), checkpoint.Wrap(seekErr, ErrReadFile)
	}

	return len(data), nil
}

// ReadAt reads len(p) bytes starting at off. It returns io.EOF together with
// the available bytes if the file ends before p is filled.
func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Reading over the end makes no sense.
	if f.Size() <= off {
		return 0, io.EOF
	}

	readSize := int64(len(p))
	atEnd := false
	if rest := f.Size() - off; rest < readSize {
		readSize = rest
		atEnd = true
	}

	data, err := f.fs.readFileAt(f.entry.Start, f.Size(), off, readSize)
	if data != nil {
		copy(p, data)
	}

	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}

	if int64(len(data)) < readSize {
		return len(data), checkpoint.Errorf("%w: got %d of %d bytes", ErrReadFile, len(data), readSize)
	}

	if atEnd {
		return len(data), io.EOF
	}
	return len(data), nil
}

// Seek jumps to a specific offset in the file. This affects all Read operation except ReadAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.Size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.Size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Name() string {
	return f.entry.FileName()
}

func (f *File) Stat() (os.FileInfo, error) {
	return f.entry.FileInfo(f.loc), nil
}

// readFileAt reads readSize bytes at offset of the file starting at cluster.
// Only the clusters overlapping the requested range are read from the device.
func (v *Volume) readFileAt(cluster uint16, fileSize int64, offset int64, readSize int64) ([]byte, error) {
	if offset < 0 || readSize < 0 || offset+readSize > fileSize {
		return nil, io.EOF
	}
	if readSize == 0 {
		return []byte{}, nil
	}
	if cluster == 0 {
		return nil, checkpoint.Errorf("%w: file of %d bytes has no cluster", diskerr.ErrBadChain, fileSize)
	}

	clusters, err := v.Clusters(cluster)
	if err != nil {
		return nil, err
	}

	clusterSize := v.geo.ClusterSize
	first := offset / clusterSize
	last := (offset + readSize - 1) / clusterSize
	if last >= int64(len(clusters)) {
		return nil, checkpoint.Errorf("%w: file of %d bytes ends after %d clusters", diskerr.ErrBadChain, fileSize, len(clusters))
	}

	result := make([]byte, 0, readSize)
	for i := first; i <= last; i++ {
		data, err := v.ReadCluster(clusters[i])
		if err != nil {
			return result, err
		}

		start := int64(0)
		if i == first {
			start = offset % clusterSize
		}
		end := clusterSize
		if i == last {
			end = (offset+readSize-1)%clusterSize + 1
		}
		result = append(result, data[start:end]...)
	}

	return result, nil
}
