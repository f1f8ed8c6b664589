package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripcal/internal/model"
)

func june(d int) model.Day {
	return model.NewDay(2025, time.June, d)
}

func juneConfig() ExpandConfig {
	return ExpandConfig{
		DisplayLocation: time.UTC,
		Range:           model.DayRange{From: june(1), To: june(30)},
	}
}

func calendar(events ...string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
	}
	for _, ev := range events {
		lines = append(lines, strings.Split(strings.TrimSpace(ev), "\n")...)
	}
	lines = append(lines, "END:VCALENDAR", "")
	return []byte(strings.Join(lines, "\r\n"))
}

var testSource = Source{PersonID: "ana", URL: "https://cal.example.com/private/ana.ics?token=secret"}

func TestParseICS_AllDayTimedAndTransparent(t *testing.T) {
	body := calendar(`
BEGIN:VEVENT
UID:conference
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250605
DTEND;VALUE=DATE:20250607
SUMMARY:Conference
END:VEVENT`, `
BEGIN:VEVENT
UID:dentist
DTSTAMP:20250101T000000Z
DTSTART:20250610T090000Z
DTEND:20250610T100000Z
SUMMARY:Dentist
END:VEVENT`, `
BEGIN:VEVENT
UID:reminder
DTSTAMP:20250101T000000Z
DTSTART:20250612T090000Z
DTEND:20250612T100000Z
TRANSP:TRANSPARENT
SUMMARY:Just a reminder
END:VEVENT`, `
BEGIN:VEVENT
DTSTAMP:20250101T000000Z
DTSTART:20250613T090000Z
SUMMARY:No UID
END:VEVENT`)

	events, err := ParseICS(testSource, body)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byUID := map[string]ParsedEvent{}
	for _, ev := range events {
		byUID[ev.UID] = ev
	}
	assert.True(t, byUID["conference"].AllDay)
	assert.False(t, byUID["dentist"].AllDay)
	assert.Equal(t, "ana", byUID["dentist"].Source.PersonID)

	res, err := ExpandBusyDays(events, juneConfig())
	require.NoError(t, err)
	assert.Equal(t, []model.Day{june(5), june(6), june(10)}, res.Days.Sorted())
}

func TestParseICS_Errors(t *testing.T) {
	_, err := ParseICS(testSource, nil)
	assert.Error(t, err)
}

func TestExpandBusyDays_RecurrenceExdateAndCancelledOverride(t *testing.T) {
	body := calendar(`
BEGIN:VEVENT
UID:standup
DTSTAMP:20250101T000000Z
DTSTART:20250602T090000Z
DTEND:20250602T093000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20250609T090000Z
SUMMARY:Weekly shift
END:VEVENT`, `
BEGIN:VEVENT
UID:standup
DTSTAMP:20250101T000000Z
RECURRENCE-ID:20250616T090000Z
DTSTART:20250616T090000Z
DTEND:20250616T093000Z
STATUS:CANCELLED
SUMMARY:Weekly shift
END:VEVENT`)

	events, err := ParseICS(testSource, body)
	require.NoError(t, err)
	require.Len(t, events, 2)

	res, err := ExpandBusyDays(events, juneConfig())
	require.NoError(t, err)
	assert.Equal(t, []model.Day{june(2), june(23)}, res.Days.Sorted())
	assert.Empty(t, res.TruncatedEvents)
}

func TestExpandBusyDays_MovedOverride(t *testing.T) {
	rid := time.Date(2025, time.June, 9, 9, 0, 0, 0, time.UTC)
	events := []ParsedEvent{
		{
			UID:      "shift",
			Start:    time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC),
			End:      time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC),
			RawRRule: "FREQ=WEEKLY;COUNT=2",
		},
		{
			UID:        "shift",
			Start:      time.Date(2025, time.June, 11, 9, 0, 0, 0, time.UTC),
			End:        time.Date(2025, time.June, 11, 10, 0, 0, 0, time.UTC),
			Recurrence: &rid,
			IsOverride: true,
		},
	}

	res, err := ExpandBusyDays(events, juneConfig())
	require.NoError(t, err)
	assert.Equal(t, []model.Day{june(2), june(11)}, res.Days.Sorted())
}

func TestExpandBusyDays_TimedSpans(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		loc   *time.Location
		want  []model.Day
	}{
		{
			name:  "overnight",
			start: time.Date(2025, time.June, 3, 22, 0, 0, 0, time.UTC),
			end:   time.Date(2025, time.June, 4, 2, 0, 0, 0, time.UTC),
			loc:   time.UTC,
			want:  []model.Day{june(3), june(4)},
		},
		{
			name:  "ends at midnight",
			start: time.Date(2025, time.June, 3, 20, 0, 0, 0, time.UTC),
			end:   time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC),
			loc:   time.UTC,
			want:  []model.Day{june(3)},
		},
		{
			name:  "display zone shifts the day",
			start: time.Date(2025, time.June, 3, 20, 0, 0, 0, time.UTC),
			end:   time.Date(2025, time.June, 3, 21, 0, 0, 0, time.UTC),
			loc:   seoul,
			want:  []model.Day{june(4)},
		},
		{
			name:  "instant",
			start: time.Date(2025, time.June, 3, 12, 0, 0, 0, time.UTC),
			end:   time.Date(2025, time.June, 3, 12, 0, 0, 0, time.UTC),
			loc:   time.UTC,
			want:  []model.Day{june(3)},
		},
		{
			name:  "clipped to range",
			start: time.Date(2025, time.May, 30, 12, 0, 0, 0, time.UTC),
			end:   time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC),
			loc:   time.UTC,
			want:  []model.Day{june(1), june(2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := juneConfig()
			cfg.DisplayLocation = tt.loc
			res, err := ExpandBusyDays([]ParsedEvent{{UID: "x", Start: tt.start, End: tt.end}}, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Days.Sorted())
		})
	}
}

func TestExpandBusyDays_CapsRecurrence(t *testing.T) {
	events := []ParsedEvent{{
		UID:      "daily",
		Start:    time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC),
		End:      time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}}
	cfg := juneConfig()
	cfg.MaxOccurrencesPerEvent = 5

	res, err := ExpandBusyDays(events, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Days, 5)
	assert.Equal(t, []string{"daily"}, res.TruncatedEvents)
}

func TestExpandBusyDays_CapStopsDenseRules(t *testing.T) {
	// Every second of June: only walking lazily makes this finish.
	events := []ParsedEvent{{
		UID:      "ticker",
		Start:    time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, time.June, 1, 0, 0, 1, 0, time.UTC),
		RawRRule: "FREQ=SECONDLY",
	}}
	cfg := juneConfig()
	cfg.MaxOccurrencesPerEvent = 10

	res, err := ExpandBusyDays(events, cfg)
	require.NoError(t, err)
	assert.Equal(t, []model.Day{june(1)}, res.Days.Sorted())
	assert.Equal(t, []string{"ticker"}, res.TruncatedEvents)
}

func TestTakeBetween(t *testing.T) {
	base := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	counter := func(calls *int) func() (time.Time, bool) {
		return func() (time.Time, bool) {
			*calls++
			return base.Add(time.Duration(*calls-1) * time.Hour), true
		}
	}

	tests := []struct {
		name      string
		from      time.Time
		until     time.Time
		limit     int
		wantLen   int
		wantCap   bool
		wantCalls int
	}{
		{name: "stops at limit", from: base, until: base.AddDate(1, 0, 0), limit: 3, wantLen: 3, wantCap: true, wantCalls: 4},
		{name: "stops past until", from: base, until: base.Add(2 * time.Hour), limit: 10, wantLen: 3, wantCap: false, wantCalls: 4},
		{name: "skips before from", from: base.Add(5 * time.Hour), until: base.Add(6 * time.Hour), limit: 10, wantLen: 2, wantCap: false, wantCalls: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, hitCap := takeBetween(counter(&calls), tt.from, tt.until, tt.limit)
			assert.Len(t, got, tt.wantLen)
			assert.Equal(t, tt.wantCap, hitCap)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}

	t.Run("exhausted iterator", func(t *testing.T) {
		done := func() (time.Time, bool) { return time.Time{}, false }
		got, hitCap := takeBetween(done, base, base.AddDate(0, 0, 1), 5)
		assert.Empty(t, got)
		assert.False(t, hitCap)
	})
}

func TestExpandBusyDays_TransparentOverrideFreesInstance(t *testing.T) {
	body := calendar(`
BEGIN:VEVENT
UID:gym
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250602
RRULE:FREQ=WEEKLY;COUNT=3
SUMMARY:Gym
END:VEVENT`, `
BEGIN:VEVENT
UID:gym
DTSTAMP:20250101T000000Z
RECURRENCE-ID;VALUE=DATE:20250609
DTSTART;VALUE=DATE:20250609
TRANSP:TRANSPARENT
SUMMARY:Gym (optional)
END:VEVENT`)

	events, err := ParseICS(testSource, body)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[1].Cancelled)

	res, err := ExpandBusyDays(events, juneConfig())
	require.NoError(t, err)
	assert.Equal(t, []model.Day{june(2), june(16)}, res.Days.Sorted())
}

func TestExpandBusyDays_InvalidRange(t *testing.T) {
	cfg := juneConfig()
	cfg.Range = model.DayRange{From: june(5), To: june(1)}
	_, err := ExpandBusyDays(nil, cfg)
	assert.Error(t, err)
}

func TestExpandRules(t *testing.T) {
	r := model.DayRange{From: june(1), To: june(15)}

	days, err := ExpandRules([]string{"FREQ=WEEKLY;BYDAY=SA,SU", "RRULE:FREQ=MONTHLY;BYMONTHDAY=10"}, r, time.UTC)
	require.NoError(t, err)
	// June 2025: Sun 1, Sat 7, Sun 8, Sat 14, Sun 15; plus the 10th.
	assert.Equal(t, []model.Day{june(1), june(7), june(8), june(10), june(14), june(15)}, days.Sorted())

	days, err = ExpandRules([]string{"FREQ=WEEKLY;BYDAY=SA", "NOT A RULE"}, r, time.UTC)
	assert.Error(t, err)
	assert.Equal(t, []model.Day{june(7), june(14)}, days.Sorted())

	days, err = ExpandRules([]string{"FREQ=DAILY"}, model.DayRange{From: june(3), To: june(1)}, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestExportWindows(t *testing.T) {
	trip := model.Trip{Name: "Lisbon Trip"}
	windows := []model.TripWindow{
		{Start: june(1), End: june(3)},
		{Start: june(10), End: june(12)},
	}

	body := ExportWindows(trip, windows, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "lisbon-trip-20250601-20250603@tripcal", first.Id())
	assert.Contains(t, first.GetProperty(ical.ComponentPropertyDtStart).Value, "20250601")
	assert.Contains(t, first.GetProperty(ical.ComponentPropertyDtEnd).Value, "20250604")
	assert.Equal(t, "Lisbon Trip: 2025-06-01 - 2025-06-03", first.GetProperty(ical.ComponentPropertySummary).Value)

	// Exported windows read back as transparent, so they never block anybody.
	parsed, err := ParseICS(Source{PersonID: "x"}, body)
	require.NoError(t, err)
	assert.Empty(t, parsed)
}
