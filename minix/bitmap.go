package minix

import (
	"github.com/aligator/fat2minix/checkpoint"
	"github.com/aligator/fat2minix/diskerr"
)

// bitmap is a byte slice which acts as a slice of bits. Bit i is bit i%8 of
// byte i/8. Allocation searches the range [lo, hi).
type bitmap struct {
	name  string
	slice []byte
	lo    uint32 // Lowest value which should be allocated
	hi    uint32 // Highest value which should be allocated, exclusive
}

// newBitmap wraps b. hi is reduced to the size of b.
func newBitmap(name string, b []byte, lo, hi uint32) *bitmap {
	if size := uint32(len(b) * 8); hi > size {
		hi = size
	}
	return &bitmap{
		name:  name,
		slice: b,
		lo:    lo,
		hi:    hi,
	}
}

// allocate finds the lowest bit in [lo, hi) which is 0, sets it and returns
// its index. Bytes which are completely in use are skipped as a whole.
func (bm *bitmap) allocate() (uint32, error) {
	for i := bm.lo; i < bm.hi; {
		if i%8 == 0 && bm.slice[i/8] == 0xFF {
			i += 8
			continue
		}
		if !bm.get(i) {
			bm.set(i, true)
			return i, nil
		}
		i++
	}

	return 0, checkpoint.Errorf("%w: no free bit in the %s (%d-%d)", diskerr.ErrResourceExhausted, bm.name, bm.lo, bm.hi-1)
}

func (bm *bitmap) inRange(i uint32) bool {
	return i < uint32(len(bm.slice)*8)
}

func (bm *bitmap) get(i uint32) bool {
	if !bm.inRange(i) {
		return false
	}
	return bm.slice[i/8]&(1<<(i%8)) != 0
}

func (bm *bitmap) set(i uint32, v bool) {
	if !bm.inRange(i) {
		return
	}
	if v {
		bm.slice[i/8] |= 1 << (i % 8)
	} else {
		bm.slice[i/8] &^= 1 << (i % 8)
	}
}
