// Package localtime converts between absolute instants and the transit
// agency's wall clock. The agency runs on a single fixed UTC offset with no
// seasonal shifts, so all conversions are plain offset arithmetic.
package localtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is the agency-local wall clock.
type Clock struct {
	loc *time.Location
}

// NewClock builds a Clock for a fixed UTC offset given in minutes
// (e.g. 180 for UTC+03:00).
func NewClock(offsetMinutes int) Clock {
	sign := "+"
	abs := offsetMinutes
	if abs < 0 {
		sign = "-"
		abs = -abs
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, abs/60, abs%60)
	return Clock{loc: time.FixedZone(name, offsetMinutes*60)}
}

// Location exposes the fixed zone, for formatting.
func (c Clock) Location() *time.Location {
	return c.loc
}

// Components is a local wall-clock reading.
type Components struct {
	Hours        int
	Minutes      int
	TotalMinutes int // minutes since local midnight, 0..1439
}

// ToLocalComponents converts an instant to the agency's wall clock.
func (c Clock) ToLocalComponents(t time.Time) Components {
	lt := t.In(c.loc)
	return Components{
		Hours:        lt.Hour(),
		Minutes:      lt.Minute(),
		TotalMinutes: lt.Hour()*60 + lt.Minute(),
	}
}

// DayStart returns the instant of local midnight of the agency-local calendar
// day containing t.
func (c Clock) DayStart(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
}

// MinutesToInstant anchors localMinutes to the agency-local calendar day
// containing reference and returns the resulting instant. Values of 1440 and
// above roll into the following local day, which keeps a post-midnight trip
// attached to the service day it belongs to.
func (c Clock) MinutesToInstant(reference time.Time, localMinutes int) time.Time {
	return c.DayStart(reference).Add(time.Duration(localMinutes) * time.Minute)
}

// ServiceDate returns the weekday and YYYYMMDD date of the agency-local day
// containing t, as used by service calendars.
func (c Clock) ServiceDate(t time.Time) (time.Weekday, string) {
	lt := t.In(c.loc)
	return lt.Weekday(), lt.Format("20060102")
}

// ParseServiceTime parses a schedule time of the form H:MM:SS or HH:MM:SS into
// minutes since local midnight. Hours may exceed 24 for post-midnight service;
// the value is returned unclamped. Seconds are truncated.
func ParseServiceTime(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 && len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("malformed hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minutes in %q", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("malformed seconds in %q", s)
		}
	}
	return h*60 + m, nil
}

// FormatServiceTime renders minutes since local midnight as HH:MM, with hours
// above 24 preserved (e.g. 1530 -> "25:30").
func FormatServiceTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// WrapMinutes reduces an unclamped minutes value into the 0..1439 range.
func WrapMinutes(minutes int) int {
	m := minutes % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return m
}
