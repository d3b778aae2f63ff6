package fat

import (
	"time"
)

// Layout of the packed date and time fields of a DirEntry.
// Bit 0 is the LSB of the 16-bit word.
const (
	dateDayMask    = 0x001F // day of month, 1-31
	dateMonthMask  = 0x01E0 // month, 1-12
	dateMonthShift = 5
	dateYearMask   = 0xFE00 // years since 1980, 0-127
	dateYearShift  = 9

	timeSecondMask  = 0x001F // seconds / 2, 0-29
	timeMinuteMask  = 0x07E0 // 0-59
	timeMinuteShift = 5
	timeHourMask    = 0xF800 // 0-23
	timeHourShift   = 11

	epochYear = 1980
)

// ParseDate reads the given input as a FAT date stamp: a date relative to the
// MS-DOS epoch of 01/01/1980.
// It returns a time.Time which has always a time of 00:00:00 UTC.
//
// Day and month 0 are invalid in FAT. In that case time.Time{} is returned so
// time.Time.IsZero() can be used to detect it.
//
// A month bigger than 12 is unspecified and rolls over into the next year.
func ParseDate(input uint16) time.Time {
	day := input & dateDayMask
	month := (input & dateMonthMask) >> dateMonthShift
	years := (input & dateYearMask) >> dateYearShift

	if day == 0 || month == 0 {
		return time.Time{}
	}

	return time.Date(epochYear+int(years), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
}

// ParseTime reads the given input as a FAT time stamp, which has a granularity
// of 2 seconds. It returns a time.Time on January 1, year 1.
//
// Values above the specified ranges are added to the time but capped at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&timeSecondMask) * 2
	minutes := (input & timeMinuteMask) >> timeMinuteShift
	hours := (input & timeHourMask) >> timeHourShift

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)

	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}

	return result
}

// ParseDateTime combines a packed date and time into one instant in loc.
// FAT stores local wall clock time, so loc should be the zone the volume was
// written in. It returns time.Time{} if the date is invalid.
func ParseDateTime(date, tm uint16, loc *time.Location) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	t := ParseTime(tm)

	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// PackDate converts t into a FAT date stamp. Years outside of 1980-2107 are clamped.
func PackDate(t time.Time) uint16 {
	year := t.Year() - epochYear
	if year < 0 {
		return 1<<dateMonthShift | 1
	} else if year > 127 {
		year = 127
	}

	return uint16(year)<<dateYearShift |
		uint16(t.Month())<<dateMonthShift |
		uint16(t.Day())
}

// PackTime converts the wall clock of t into a FAT time stamp, dropping odd seconds.
func PackTime(t time.Time) uint16 {
	return uint16(t.Hour())<<timeHourShift |
		uint16(t.Minute())<<timeMinuteShift |
		uint16(t.Second()/2)
}
