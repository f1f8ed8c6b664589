package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"tripcal/internal/model"
)

const productID = "-//tripcal//available windows//EN"

// ExportWindows renders windows as an iCalendar document with one all-day
// VEVENT per window, so a group can drop the options into their calendars.
// DTEND is the day after the window's last day, as RFC 5545 requires.
func ExportWindows(trip model.Trip, windows []model.TripWindow, now time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if trip.Name != "" {
		cal.SetName(trip.Name)
	}

	stamp := now.UTC()
	for _, w := range windows {
		ev := cal.AddEvent(windowUID(trip, w))
		ev.SetDtStampTime(stamp)
		ev.SetAllDayStartAt(w.Start.Time(time.UTC))
		ev.SetAllDayEndAt(w.End.AddDays(1).Time(time.UTC))
		ev.SetSummary(windowSummary(trip, w))
		ev.SetDescription(fmt.Sprintf("%d days, everyone available", w.Len()))
		ev.SetProperty("TRANSP", "TRANSPARENT")
	}

	return []byte(cal.Serialize())
}

func windowSummary(trip model.Trip, w model.TripWindow) string {
	name := trip.Name
	if name == "" {
		name = "Trip"
	}
	return fmt.Sprintf("%s: %s - %s", name, w.Start, w.End)
}

// windowUID is stable for a given trip name and window so re-imports update
// rather than duplicate.
func windowUID(trip model.Trip, w model.TripWindow) string {
	slug := strings.ToLower(strings.Join(strings.Fields(trip.Name), "-"))
	if slug == "" {
		slug = "trip"
	}
	return fmt.Sprintf("%s-%s-%s@tripcal", slug, strings.ReplaceAll(w.Start.String(), "-", ""), strings.ReplaceAll(w.End.String(), "-", ""))
}
