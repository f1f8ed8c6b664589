package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayLayout is the ISO date format used for Day on the wire and in config.
const DayLayout = "2006-01-02"

// Day is a calendar day with time-of-day disregarded, stored as the number of
// days since 1970-01-01. Two Days are equal iff they name the same date.
type Day int

const secondsPerDay = 24 * 60 * 60

// epoch is computed in UTC so that Day arithmetic never sees DST shifts.
var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// DayOf returns the calendar day of t as seen in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	u := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Day(u.Unix() / secondsPerDay)
}

// NewDay builds a Day from a calendar date.
func NewDay(year int, month time.Month, day int) Day {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDay parses an ISO YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty date")
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return 0, err
	}
	return DayOf(t), nil
}

// Time returns midnight of the day in loc (UTC when loc is nil).
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	u := epoch.AddDate(0, 0, int(d))
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days.
func (d Day) AddDays(n int) Day {
	return d + Day(n)
}

// Weekday returns the day of the week.
func (d Day) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

func (d Day) String() string {
	return d.Time(time.UTC).Format(DayLayout)
}

// MarshalText encodes the day as YYYY-MM-DD. This covers JSON and YAML.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes YYYY-MM-DD.
func (d *Day) UnmarshalText(b []byte) error {
	v, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MaxRangeDays is the longest range accepted for a trip search, two years.
const MaxRangeDays = 731

// ErrRangeTooLong reports a range spanning more than MaxRangeDays.
var ErrRangeTooLong = fmt.Errorf("range spans more than %d days", MaxRangeDays)

// DayRange is an inclusive pair of calendar days.
type DayRange struct {
	From Day `json:"from" yaml:"from"`
	To   Day `json:"to" yaml:"to"`
}

// Valid reports whether From <= To.
func (r DayRange) Valid() bool {
	return r.From <= r.To
}

// Len is the number of days in the range, counting both ends. Zero for an
// invalid range.
func (r DayRange) Len() int {
	if !r.Valid() {
		return 0
	}
	return int(r.To-r.From) + 1
}

// Contains reports whether d lies within the range.
func (r DayRange) Contains(d Day) bool {
	return r.Valid() && d >= r.From && d <= r.To
}

// CheckLength returns ErrRangeTooLong if r holds more than MaxRangeDays
// days. An inverted range is empty and passes.
func (r DayRange) CheckLength() error {
	if r.Len() > MaxRangeDays {
		return fmt.Errorf("%s..%s: %w", r.From, r.To, ErrRangeTooLong)
	}
	return nil
}

// Days lists every day of the range in ascending order.
func (r DayRange) Days() []Day {
	out := make([]Day, 0, r.Len())
	for d := r.From; d <= r.To; d++ {
		out = append(out, d)
	}
	return out
}

// DaySet is an unordered set of calendar days.
type DaySet map[Day]struct{}

// NewDaySet returns a set holding days.
func NewDaySet(days ...Day) DaySet {
	s := make(DaySet, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

func (s DaySet) Has(d Day) bool {
	_, ok := s[d]
	return ok
}

func (s DaySet) Add(d Day) {
	s[d] = struct{}{}
}

func (s DaySet) Remove(d Day) {
	delete(s, d)
}

// Toggle flips membership of d and reports whether d is now in the set.
func (s DaySet) Toggle(d Day) bool {
	if s.Has(d) {
		delete(s, d)
		return false
	}
	s[d] = struct{}{}
	return true
}

// Sorted returns the members in ascending order.
func (s DaySet) Sorted() []Day {
	out := make([]Day, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s DaySet) Clone() DaySet {
	out := make(DaySet, len(s))
	for d := range s {
		out[d] = struct{}{}
	}
	return out
}

// Union returns a new set with the members of s and every other set.
func (s DaySet) Union(others ...DaySet) DaySet {
	out := s.Clone()
	for _, o := range others {
		for d := range o {
			out[d] = struct{}{}
		}
	}
	return out
}
