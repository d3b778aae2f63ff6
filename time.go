package fat2minix

import (
	"math"
	"time"

	"github.com/aligator/fat2minix/fat"
)

// MinixTime converts a packed FAT date and time, stored as wall clock time in
// loc, into seconds since the Unix epoch.
// An invalid date results in 0. Instants after 2106 are clamped.
func MinixTime(date, tm uint16, loc *time.Location) uint32 {
	t := fat.ParseDateTime(date, tm, loc)
	if t.IsZero() {
		return 0
	}

	sec := t.Unix()
	switch {
	case sec < 0:
		return 0
	case sec > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(sec)
}
