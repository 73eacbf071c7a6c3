package fat

import (
	"time"
)

// ParseDate reads a FAT directory entry date stamp:
//
//	Bits 0-4: day of month, 1-31.
//	Bits 5-8: month of year, 1-12.
//	Bits 9-15: years since 1980, 0-127.
//
// A day or month of 0 is invalid and results in time.Time{}, so IsZero can be used.
// A month above 12 carries into the year.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime reads a FAT directory entry time stamp with a granularity of two seconds:
//
//	Bits 0-4: two second count, 0-29.
//	Bits 5-10: minutes, 0-59.
//	Bits 11-15: hours, 0-23.
//
// The result is on January 1, year 1. Out of range values are clamped to 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)
	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}
	return result
}

// FormatDate is the inverse of ParseDate. Dates outside 1980-2107 are clamped.
func FormatDate(t time.Time) uint16 {
	year := t.Year() - 1980
	switch {
	case year < 0:
		return 1<<5 | 1
	case year > 127:
		return 127<<9 | 12<<5 | 31
	}
	return uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// FormatTime is the inverse of ParseTime. Odd seconds are rounded down.
func FormatTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// joinDateTime combines a date and a time stamp. An invalid date results in time.Time{}.
func joinDateTime(date, tm uint16) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	c := ParseTime(tm)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, time.UTC)
}
