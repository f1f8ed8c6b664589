package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tripcal/internal/model"
)

// PersonConfig seeds one roster entry.
type PersonConfig struct {
	// ID must be unique across people. Left empty, one is generated at startup.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name" validate:"required"`

	// Unavailable lists days (YYYY-MM-DD) this person cannot travel.
	Unavailable []model.Day `yaml:"unavailable,omitempty" json:"unavailable,omitempty"`

	// Rules are RRULE strings for recurring unavailability, e.g.
	// "FREQ=WEEKLY;BYDAY=SA,SU".
	Rules []string `yaml:"rules,omitempty" json:"rules,omitempty"`

	// Calendars are ICS URLs; every day touched by an event is unavailable.
	Calendars []string `yaml:"calendars,omitempty" json:"calendars,omitempty" validate:"dive,url"`
}

// TripConfig holds the initial trip settings.
type TripConfig struct {
	Name          string             `yaml:"name" json:"name"`
	DurationDays  int                `yaml:"duration_days" json:"duration_days" validate:"gte=1"`
	CostPerPerson int                `yaml:"cost_per_person" json:"cost_per_person" validate:"gte=0"`
	From          *model.Day         `yaml:"from,omitempty" json:"from,omitempty"`
	To            *model.Day         `yaml:"to,omitempty" json:"to,omitempty"`
	Preferences   []model.Preference `yaml:"preferences,omitempty" json:"preferences,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required"`

	// Timezone is the IANA zone that defines "today" and the calendar day of
	// imported events (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info error"`

	// RefreshCron is a cron schedule (e.g. "*/30 * * * *") for re-reading
	// people's calendars and rules.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// DefaultRangeDays is the length of the range used when the trip does not
	// set from/to: today through today+DefaultRangeDays.
	DefaultRangeDays int `yaml:"default_range_days" json:"default_range_days" validate:"gte=0,lt=731"`

	Trip   TripConfig     `yaml:"trip" json:"trip"`
	People []PersonConfig `yaml:"people" json:"people" validate:"dive"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:8080",
		Timezone:         "UTC",
		LogLevel:         "info",
		RefreshCron:      "*/30 * * * *",
		CacheDir:         "./var/ics-cache",
		DefaultRangeDays: 60,
		Trip: TripConfig{
			Name:          "Summer Vacation",
			DurationDays:  7,
			CostPerPerson: 1000,
			Preferences:   model.DefaultPreferences(),
		},
		People: []PersonConfig{
			{ID: "1", Name: "You"},
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.DefaultRangeDays <= 0 {
		c.DefaultRangeDays = 60
	}
	if c.Trip.Name == "" {
		c.Trip.Name = "Summer Vacation"
	}
	if c.Trip.DurationDays <= 0 {
		c.Trip.DurationDays = 7
	}
	if c.Trip.CostPerPerson < 0 {
		c.Trip.CostPerPerson = 0
	}
	if c.Trip.Preferences == nil {
		c.Trip.Preferences = model.DefaultPreferences()
	}
	if len(c.People) == 0 {
		c.People = []PersonConfig{{ID: "1", Name: "You"}}
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Trip.From != nil && c.Trip.To != nil {
		if *c.Trip.From > *c.Trip.To {
			return fmt.Errorf("config: trip.from %s is after trip.to %s", c.Trip.From, c.Trip.To)
		}
		if err := (model.DayRange{From: *c.Trip.From, To: *c.Trip.To}).CheckLength(); err != nil {
			return fmt.Errorf("config: trip: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.People))
	for _, p := range c.People {
		if p.ID == "" {
			continue
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate person id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TripRange returns the configured range, or today..today+DefaultRangeDays
// in the configured timezone for any bound that is unset.
func (c *Config) TripRange(now time.Time) model.DayRange {
	today := model.DayOf(now.In(c.Location()))
	r := model.DayRange{From: today, To: today.AddDays(c.DefaultRangeDays)}
	if c.Trip.From != nil {
		r.From = *c.Trip.From
		if c.Trip.To == nil {
			r.To = r.From.AddDays(c.DefaultRangeDays)
		}
	}
	if c.Trip.To != nil {
		r.To = *c.Trip.To
	}
	return r
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tripcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
