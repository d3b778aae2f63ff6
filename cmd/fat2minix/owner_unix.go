//go:build unix

package main

import "golang.org/x/sys/unix"

// defaultOwner returns the user and group running the program. Minix V1
// stores the group in a single byte, so larger ids are cut.
func defaultOwner() (uint16, uint8) {
	return uint16(unix.Getuid()), uint8(unix.Getgid())
}
