// Package diskio performs exact-size transfers against an opened volume image.
// Both volume packages go through it, so every partial transfer is reported the
// same way: as diskerr.ErrShortRead / diskerr.ErrShortWrite, never retried.
package diskio

import (
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
)

// Device is an opened volume image. afero.File and *os.File both satisfy it.
type Device interface {
	io.Reader
	io.Writer
	io.Seeker
}

func seek(dev io.Seeker, off int64, what string) error {
	if off < 0 {
		return checkpoint.Errorf("%w: %s: negative offset %d", diskerr.ErrSeek, what, off)
	}

	pos, err := dev.Seek(off, io.SeekStart)
	if err != nil {
		return checkpoint.Wrap(err, fmt.Errorf("%w: %s: offset %#x", diskerr.ErrSeek, what, off))
	}
	if pos != off {
		return checkpoint.Errorf("%w: %s: landed at %#x instead of %#x", diskerr.ErrSeek, what, pos, off)
	}
	return nil
}

// ReadAt fills buf completely from offset off. what names the structure being
// read and ends up in the error message.
func ReadAt(dev io.ReadSeeker, off int64, buf []byte, what string) error {
	if err := seek(dev, off, what); err != nil {
		return err
	}

	n, err := io.ReadFull(dev, buf)
	if glog.V(2) {
		glog.Infof("read %s: %d of %d bytes at %#x", what, n, len(buf), off)
	}
	if err == nil {
		return nil
	}

	reason := fmt.Errorf("%w: %s: got %d of %d bytes at offset %#x", diskerr.ErrShortRead, what, n, len(buf), off)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return checkpoint.From(reason)
	}
	return checkpoint.Wrap(err, reason)
}

// WriteAt writes all of buf at offset off.
func WriteAt(dev io.WriteSeeker, off int64, buf []byte, what string) error {
	if err := seek(dev, off, what); err != nil {
		return err
	}

	n, err := dev.Write(buf)
	if glog.V(2) {
		glog.Infof("write %s: %d of %d bytes at %#x", what, n, len(buf), off)
	}
	if err == nil && n == len(buf) {
		return nil
	}

	reason := fmt.Errorf("%w: %s: wrote %d of %d bytes at offset %#x", diskerr.ErrShortWrite, what, n, len(buf), off)
	if err == nil {
		return checkpoint.From(reason)
	}
	return checkpoint.Wrap(err, reason)
}
