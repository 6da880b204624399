// Package gdeltclock supplies the current instant and derives calendar-day
// windows in a configured zone. It is the leaf dependency of the whole
// caching engine: everything else asks it for "now" instead of calling
// time.Now directly, so tests can inject a fixed instant.
package gdeltclock

import (
	"fmt"
	"time"
)

// Clock is the interface the rest of the engine depends on.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// System is the production Clock, backed by time.Now in a fixed zone.
type System struct {
	loc *time.Location
}

// NewSystem returns a Clock in the given zone. A nil location defaults to UTC.
func NewSystem(loc *time.Location) System {
	if loc == nil {
		loc = time.UTC
	}
	return System{loc: loc}
}

func (s System) Now() time.Time          { return time.Now().In(s.loc) }
func (s System) Location() *time.Location { return s.loc }

// Fixed is a Clock that always returns the same instant; used by tests.
type Fixed struct {
	At  time.Time
	Loc *time.Location
}

func (f Fixed) Now() time.Time {
	loc := f.Location()
	return f.At.In(loc)
}

func (f Fixed) Location() *time.Location {
	if f.Loc != nil {
		return f.Loc
	}
	return time.UTC
}

// Today returns the calendar date of Now() in the clock's zone, truncated
// to midnight.
func Today(c Clock) time.Time {
	now := c.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.Location())
}

// DayWindow returns the inclusive [00:00:00, 23:59:59] instants for date,
// plus their YYYYMMDDHHMMSS integer encodings.
func DayWindow(date time.Time, loc *time.Location) (lo, hi time.Time, loInt, hiInt int64) {
	if loc == nil {
		loc = time.UTC
	}
	d := date.In(loc)
	lo = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	hi = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc)
	return lo, hi, EncodeInt(lo), EncodeInt(hi)
}

// EncodeInt renders an instant as the upstream YYYYMMDDHHMMSS integer.
func EncodeInt(t time.Time) int64 {
	return int64(t.Year())*1e10 +
		int64(t.Month())*1e8 +
		int64(t.Day())*1e6 +
		int64(t.Hour())*1e4 +
		int64(t.Minute())*1e2 +
		int64(t.Second())
}

// DecodeInt parses a YYYYMMDDHHMMSS integer back into an instant in loc.
// Returns an error if v isn't a well-formed 14-digit timestamp.
func DecodeInt(v int64, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if v < 1e13 || v >= 1e14 {
		return time.Time{}, fmt.Errorf("gdeltclock: %d is not a valid YYYYMMDDHHMMSS value", v)
	}
	orig := v
	second := v % 100
	v /= 100
	minute := v % 100
	v /= 100
	hour := v % 100
	v /= 100
	day := v % 100
	v /= 100
	month := v % 100
	year := v / 100

	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), 0, loc)
	if t.Year() != int(year) || t.Month() != time.Month(month) || t.Day() != int(day) {
		return time.Time{}, fmt.Errorf("gdeltclock: %d does not decode to a valid calendar date", orig)
	}
	return t, nil
}

// RecentDays returns the n calendar days ending yesterday, ascending,
// excluding today. RecentDays(0) is empty.
func RecentDays(c Clock, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	today := Today(c)
	days := make([]time.Time, n)
	for i := 0; i < n; i++ {
		// oldest day first: today - n, today - (n-1), ..., today - 1
		days[i] = today.AddDate(0, 0, -(n - i))
	}
	return days
}
