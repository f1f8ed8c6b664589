package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripcal/internal/model"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Listen, again.Listen)
	assert.Equal(t, cfg.Trip.DurationDays, again.Trip.DurationDays)
	assert.Equal(t, cfg.People, again.People)
}

func TestLoad_ParsesRosterAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `listen: ":9000"
timezone: Europe/Berlin
trip:
  name: Lisbon
  duration_days: 3
  from: 2025-06-01
  to: 2025-06-30
people:
  - id: "1"
    name: You
    unavailable:
      - 2025-06-05
      - 2025-06-05
  - id: ana
    name: Ana
    rules:
      - FREQ=WEEKLY;BYDAY=SU
    calendars:
      - https://example.com/ana.ics
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen", cfg.Listen, ":9000"},
		{"timezone", cfg.Timezone, "Europe/Berlin"},
		{"refresh default", cfg.RefreshCron, "*/30 * * * *"},
		{"log level default", cfg.LogLevel, "info"},
		{"trip name", cfg.Trip.Name, "Lisbon"},
		{"duration", cfg.Trip.DurationDays, 3},
		{"preferences default", len(cfg.Trip.Preferences), 6},
		{"people", len(cfg.People), 2},
		{"unavailable", cfg.People[0].Unavailable, []model.Day{model.NewDay(2025, time.June, 5), model.NewDay(2025, time.June, 5)}},
		{"rules", cfg.People[1].Rules, []string{"FREQ=WEEKLY;BYDAY=SU"}},
		{"calendars", cfg.People[1].Calendars, []string{"https://example.com/ana.ics"}},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	r := cfg.TripRange(time.Now())
	assert.Equal(t, model.DayRange{From: model.NewDay(2025, time.June, 1), To: model.NewDay(2025, time.June, 30)}, r)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"inverted range", "trip:\n  from: 2025-06-10\n  to: 2025-06-01\n"},
		{"bad date", "trip:\n  from: June 1\n"},
		{"bad calendar url", "people:\n  - name: Ana\n    calendars: [\"not a url\"]\n"},
		{"missing name", "people:\n  - id: x\n"},
		{"duplicate ids", "people:\n  - {id: a, name: A}\n  - {id: a, name: B}\n"},
		{"unknown timezone", "timezone: Mars/Olympus\n"},
		{"bad log level", "log_level: chatty\n"},
		{"range too long", "trip:\n  from: 0001-01-01\n  to: 9999-12-31\n"},
		{"default range too long", "default_range_days: 5000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestTripRange_DefaultsToToday(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Seoul"
	cfg.DefaultRangeDays = 10

	// 2025-06-01 20:00 UTC is already 2025-06-02 in Seoul.
	now := time.Date(2025, time.June, 1, 20, 0, 0, 0, time.UTC)
	r := cfg.TripRange(now)
	assert.Equal(t, model.NewDay(2025, time.June, 2), r.From)
	assert.Equal(t, model.NewDay(2025, time.June, 12), r.To)

	from := model.NewDay(2025, time.July, 1)
	cfg.Trip.From = &from
	r = cfg.TripRange(now)
	assert.Equal(t, from, r.From)
	assert.Equal(t, from.AddDays(10), r.To)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.People = append(cfg.People, PersonConfig{
		ID:          "bo",
		Name:        "Bo",
		Unavailable: []model.Day{model.NewDay(2025, time.August, 15)},
	})
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.People, loaded.People)

	assert.Error(t, Save("", cfg))
	assert.Error(t, Save(path, nil))
}

func TestRosterAndTripModel(t *testing.T) {
	cfg := DefaultConfig()
	d := model.NewDay(2025, time.June, 5)
	cfg.People = append(cfg.People, PersonConfig{
		ID:          "ana",
		Name:        "Ana",
		Unavailable: []model.Day{d, d},
		Rules:       []string{"FREQ=WEEKLY;BYDAY=SA"},
	})

	people := cfg.Roster()
	require.Len(t, people, 2)
	assert.Equal(t, "You", people[0].Name)
	assert.Len(t, people[1].Unavailable, 1)
	assert.True(t, people[1].IsUnavailable(d))
	assert.Equal(t, []string{"FREQ=WEEKLY;BYDAY=SA"}, people[1].Rules)

	trip := cfg.TripModel(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "Summer Vacation", trip.Name)
	assert.Equal(t, 7, trip.DurationDays)
	assert.Equal(t, 61, trip.Range.Len())
}
