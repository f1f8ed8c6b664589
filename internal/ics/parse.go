package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "tripcal/internal/log"
)

// ParsedEvent is a VEVENT reduced to what matters for busy-day detection.
// Recurrence is recorded here and expanded in expand.go.
type ParsedEvent struct {
	Source Source

	UID     string
	Summary string

	Start  time.Time
	End    time.Time // exclusive; for all-day events the day after the last day
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if this VEVENT overrides one instance
	IsOverride bool

	// Cancelled overrides remove an instance; they never mark a day busy.
	Cancelled bool
}

// ParseICS parses one ICS payload. Events marked TRANSP:TRANSPARENT do not
// make anybody unavailable: plain ones are dropped, and overrides are kept
// as cancelled so the instance they replace is freed. Malformed VEVENTs are
// logged and skipped.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "person", src.PersonID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	skipped := 0
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "person", src.PersonID, "url", redactURL(src.URL))
			continue
		}
		if isTransparent(comp) {
			skipped++
			if !ev.IsOverride {
				continue
			}
			// A free override still replaces its instance.
			ev.Cancelled = true
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "person", src.PersonID, "events", len(events), "transparent", skipped)
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.Start = start

	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if vs := dtStart.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.AllDay = true
		}
	}

	// A missing DTEND means one day for all-day events and an instant
	// otherwise (RFC 5545 3.6.1).
	if end, err := ve.GetEndAt(); err == nil && end.After(start) {
		out.End = end
	} else if out.AllDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start
	}

	if p := ve.GetProperty("STATUS"); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		out.Cancelled = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, propLocation(p, start.Location())); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := parseICSTime(rid.Value, propLocation(rid, start.Location())); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// propLocation returns the zone named by the property's TZID parameter, or
// fallback when there is none or it cannot be loaded.
func propLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	tzids := p.ICalParameters["TZID"]
	if len(tzids) == 0 {
		return fallback
	}
	loc, err := time.LoadLocation(tzids[0])
	if err != nil {
		return fallback
	}
	return loc
}

func isTransparent(ve *ical.VEvent) bool {
	p := ve.GetProperty("TRANSP")
	return p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT")
}

// parseICSTime parses a bare DATE or DATE-TIME value. Floating values are
// read in loc, which is the zone of the owning event's DTSTART.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.Local
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
