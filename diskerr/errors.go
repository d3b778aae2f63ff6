// Package diskerr contains the errors shared by the FAT and Minix volume packages.
// Callers should test for them with errors.Is, as they are usually decorated by
// checkpoint on the way up.
package diskerr

import "errors"

var (
	// ErrShortRead means the device returned fewer bytes than the structure needs.
	ErrShortRead = errors.New("short read")
	// ErrShortWrite means the device accepted fewer bytes than were given.
	ErrShortWrite = errors.New("short write")
	// ErrSeek means an offset could not be computed or the device refused to seek.
	ErrSeek = errors.New("seek failed")
	// ErrPathNotFound means a path segment matched no directory entry.
	ErrPathNotFound = errors.New("path not found")
	// ErrAllocation means a buffer of the requested size could not be set up.
	ErrAllocation = errors.New("could not allocate buffer")
	// ErrResourceExhausted means a bitmap has no free bit left, or a directory
	// needs more blocks than can be addressed directly.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrUnsupportedIndirection means double indirect addressing would be needed.
	ErrUnsupportedIndirection = errors.New("double indirect blocks are not supported")

	// ErrBadChain means a cluster chain points outside the FAT or loops.
	ErrBadChain = errors.New("corrupt cluster chain")
	// ErrHole means a block was read which has no zone assigned.
	ErrHole = errors.New("block is not allocated")
	// ErrNameTooLong means a name does not fit into a directory entry.
	ErrNameTooLong = errors.New("name too long")
	// ErrInvalidGeometry means the boot sector or superblock describes an unusable layout.
	ErrInvalidGeometry = errors.New("invalid volume geometry")
	// ErrNotDirectory means a path component is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)
