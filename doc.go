// Package fat2minix copies the directory tree of a FAT16 volume into an
// empty Minix V1 volume with 30 character names.
//
// Both volumes are opened by the caller:
//
//	src, err := fat.Open(fatImage)
//	...
//	dst, err := minix.Open(minixImage)
//	...
//	stats, err := fat2minix.New(src, dst, fat2minix.Options{}).Run()
//	...
//	err = dst.Close()
//
// The translation runs once from the FAT root directory, which is mapped onto
// the Minix root inode. It is not transactional: if Run fails, the Minix
// volume is left in whatever state it reached.
package fat2minix
