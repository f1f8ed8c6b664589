package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "tripcal/internal/log"
	"tripcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	// maxScannedOccurrences bounds the starts visited for one rule, counting
	// those before the range.
	maxScannedOccurrences = 1_000_000
)

// ExpandConfig controls busy-day expansion.
type ExpandConfig struct {
	// DisplayLocation decides which calendar day a timed event falls on.
	// If nil, time.Local is used. All-day events keep their own date.
	DisplayLocation *time.Location

	// Range limits the days reported.
	Range model.DayRange

	// MaxOccurrencesPerEvent caps recurrence expansion. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// BusyResult is the set of busy days found in Range.
type BusyResult struct {
	Days model.DaySet
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandBusyDays turns parsed events into the calendar days they occupy
// within cfg.Range. It handles single events, RRULE recurrence, EXDATE,
// RECURRENCE-ID overrides (including cancelled instances) and all-day
// events with an exclusive DTEND.
func ExpandBusyDays(events []ParsedEvent, cfg ExpandConfig) (BusyResult, error) {
	result := BusyResult{Days: model.NewDaySet()}

	if !cfg.Range.Valid() {
		return result, errors.New("expand: range end is before range start")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	for uid, bases := range baseByUID {
		truncated := false
		for _, ev := range bases {
			var spans []span
			if ev.RawRRule == "" {
				spans = singleSpans(ev, overridesByUID[uid])
			} else {
				var hitCap bool
				spans, hitCap = recurringSpans(ev, overridesByUID[uid], cfg)
				truncated = truncated || hitCap
			}
			for _, s := range spans {
				addSpanDays(result.Days, s, cfg)
			}
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	return result, nil
}

// span is one concrete busy interval, [start, end).
type span struct {
	start  time.Time
	end    time.Time
	allDay bool
}

func singleSpans(ev ParsedEvent, overrides []ParsedEvent) []span {
	if ev.Cancelled {
		return nil
	}
	if o, ok := findOverrideForStart(overrides, ev.Start); ok {
		if o.Cancelled {
			return nil
		}
		return []span{{start: o.Start, end: o.End, allDay: o.AllDay}}
	}
	return []span{{start: ev.Start, end: ev.End, allDay: ev.AllDay}}
}

func recurringSpans(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]span, bool) {
	if ev.Cancelled {
		return nil, false
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the window by the event length so instances that start before
	// the range but run into it are kept.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	from := cfg.Range.From.Time(loc).Add(-dur)
	until := cfg.Range.To.AddDays(1).Time(loc)

	starts, hitCap := takeBetween(set.Iterator(), from, until, cfg.MaxOccurrencesPerEvent)

	out := make([]span, 0, len(starts))
	for _, s := range starts {
		if o, ok := findOverrideForStart(overrides, s); ok {
			if !o.Cancelled {
				out = append(out, span{start: o.Start, end: o.End, allDay: o.AllDay})
			}
			continue
		}
		out = append(out, span{start: s, end: s.Add(dur), allDay: ev.AllDay})
	}
	return out, hitCap
}

// takeBetween walks an ascending occurrence iterator and keeps the starts in
// [from, until]. It stops at the first start past until, once limit starts
// are kept, or after maxScannedOccurrences visits. The bool reports whether a
// cap ended the walk while occurrences remained.
func takeBetween(next func() (time.Time, bool), from, until time.Time, limit int) ([]time.Time, bool) {
	var out []time.Time
	for scanned := 0; scanned < maxScannedOccurrences; scanned++ {
		t, ok := next()
		if !ok || t.After(until) {
			return out, false
		}
		if t.Before(from) {
			continue
		}
		if len(out) >= limit {
			return out, true
		}
		out = append(out, t)
	}
	return out, true
}

// findOverrideForStart finds the override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// addSpanDays marks every day in cfg.Range that s touches.
func addSpanDays(days model.DaySet, s span, cfg ExpandConfig) {
	var first, last model.Day
	if s.allDay {
		// All-day dates are floating: read them in their own zone.
		first = model.DayOf(s.start)
		last = model.DayOf(s.end).AddDays(-1)
		if last < first {
			last = first
		}
	} else {
		start := s.start.In(cfg.DisplayLocation)
		end := s.end.In(cfg.DisplayLocation)
		first = model.DayOf(start)
		last = model.DayOf(end)
		// An event ending exactly at midnight does not occupy the next day.
		if end.After(start) && end.Equal(last.Time(cfg.DisplayLocation)) {
			last = last.AddDays(-1)
		}
	}

	if first < cfg.Range.From {
		first = cfg.Range.From
	}
	if last > cfg.Range.To {
		last = cfg.Range.To
	}
	for d := first; d <= last; d++ {
		days.Add(d)
	}
}

// ExpandRules expands recurring unavailability rules into days within r.
// A rule without its own DTSTART is anchored at the first day of r in loc.
func ExpandRules(rules []string, r model.DayRange, loc *time.Location) (model.DaySet, error) {
	days := model.NewDaySet()
	if !r.Valid() {
		return days, nil
	}
	if loc == nil {
		loc = time.Local
	}

	from := r.From.Time(loc)
	until := r.To.AddDays(1).Time(loc)

	var errs []error
	for _, raw := range rules {
		raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:"))
		if raw == "" {
			continue
		}
		rule, err := rrule.StrToRRule(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", raw, err))
			continue
		}
		if !strings.Contains(strings.ToUpper(raw), "DTSTART") {
			rule.DTStart(from)
		}
		occ, hitCap := takeBetween(rule.Iterator(), from, until, defaultMaxOccurrencesPerEvent)
		if hitCap {
			appLog.Error("expand: truncated rule occurrences due to cap", errors.New("max occurrences reached"), "rule", raw)
		}
		for _, t := range occ {
			d := model.DayOf(t.In(loc))
			if r.Contains(d) {
				days.Add(d)
			}
		}
	}
	return days, errors.Join(errs...)
}
