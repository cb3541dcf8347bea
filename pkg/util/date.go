package util

import (
	"strings"
	"time"
)

const (
	// DateLayout is the yyyy-mm-dd form used by history requests.
	DateLayout = "2006-01-02"
	// DatetimeLayout is the whole-second form written on ticks.
	DatetimeLayout = "2006-01-02 15:04:05"
	// BarLayout is the millisecond form written on history bars.
	BarLayout = "2006-01-02 15:04:05.000"
)

// ParseDate parses a yyyy-mm-dd date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// CanonicalDatetime turns an upstream ISO timestamp into "yyyy-mm-dd hh:mm:ss".
// The text is not reinterpreted in any zone; sub-second digits and any
// zone suffix are cut off.
func CanonicalDatetime(s string) string {
	s = strings.Replace(s, "T", " ", 1)
	if len(s) > len(DatetimeLayout) {
		s = s[:len(DatetimeLayout)]
	}
	return s
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HTTPTime formats t the way upstream chart queries expect it.
func HTTPTime(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}
