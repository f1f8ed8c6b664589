// Package availability finds the trip windows in which every participant is
// free. Everything here is a pure function of its arguments.
package availability

import (
	"tripcal/internal/model"
)

// FindAvailableWindows returns every window of durationDays consecutive days
// inside r during which no person is unavailable, in ascending order of start.
//
// Degenerate input (durationDays < 1, an inverted range, a duration longer
// than the range) yields an empty result. With no people every window in the
// range is available.
func FindAvailableWindows(r model.DayRange, durationDays int, people []model.Person) []model.TripWindow {
	windows := make([]model.TripWindow, 0)
	if durationDays < 1 || !r.Valid() {
		return windows
	}

	totalDays := r.Len()
	for i := 0; i <= totalDays-durationDays; i++ {
		start := r.From.AddDays(i)
		if freeForAll(start, durationDays, people) {
			windows = append(windows, model.TripWindow{
				Start: start,
				End:   start.AddDays(durationDays - 1),
			})
		}
	}
	return windows
}

// freeForAll reports whether nobody is unavailable on any of the n days
// starting at start. It stops at the first conflict.
func freeForAll(start model.Day, n int, people []model.Person) bool {
	for _, p := range people {
		for j := 0; j < n; j++ {
			if p.IsUnavailable(start.AddDays(j)) {
				return false
			}
		}
	}
	return true
}

// AvailableDays returns the union of all days covered by windows.
func AvailableDays(windows []model.TripWindow) model.DaySet {
	out := make(model.DaySet)
	for _, w := range windows {
		for d := w.Start; d <= w.End; d++ {
			out.Add(d)
		}
	}
	return out
}

// Highlighted reports whether d falls inside at least one window.
func Highlighted(windows []model.TripWindow, d model.Day) bool {
	for _, w := range windows {
		if w.Contains(d) {
			return true
		}
	}
	return false
}

// Blockers maps every day of r on which somebody is unavailable to the IDs
// of those people, in roster order. Days with no conflicts are omitted.
func Blockers(r model.DayRange, people []model.Person) map[model.Day][]string {
	out := make(map[model.Day][]string)
	if !r.Valid() {
		return out
	}
	for d := r.From; d <= r.To; d++ {
		for _, p := range people {
			if p.IsUnavailable(d) {
				out[d] = append(out[d], p.ID)
			}
		}
	}
	return out
}
