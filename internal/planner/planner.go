// Package planner holds the live trip: its settings and the roster of people
// with their unavailable days. All mutations are serialized by one lock and
// every Evaluate recomputes windows from scratch.
//
// Derived days are always computed for the current range: rules and the last
// imported calendar events are expanded again whenever the range changes.
package planner

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripcal/internal/availability"
	"tripcal/internal/ics"
	appLog "tripcal/internal/log"
	"tripcal/internal/model"
)

var (
	ErrPersonNotFound     = errors.New("person not found")
	ErrPrimaryPerson      = errors.New("the primary person cannot be removed")
	ErrLastPerson         = errors.New("the last person cannot be removed")
	ErrEmptyName          = errors.New("name is empty")
	ErrPreferenceNotFound = errors.New("preference not found")
)

// State is a deep copy of the planner contents.
type State struct {
	Trip     model.Trip
	People   []model.Person
	Selected string
}

// Result is the outcome of one evaluation.
type Result struct {
	State
	Windows     []model.TripWindow
	Highlighted model.DaySet
}

// Planner is safe for concurrent use.
type Planner struct {
	mu       sync.RWMutex
	trip     model.Trip
	people   []model.Person
	selected string

	loc *time.Location
	// events holds the last imported calendar events per person ID.
	events map[string][]ics.ParsedEvent
}

// Option configures a Planner.
type Option func(*Planner)

// WithLocation sets the zone that decides the calendar day of rule
// occurrences and timed events. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(p *Planner) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// New creates a planner for trip with the given initial roster. The first
// person is the primary one and is selected. If people is empty a primary
// person named "You" is created.
func New(trip model.Trip, people []model.Person, opts ...Option) *Planner {
	p := &Planner{
		trip:   trip.Clone(),
		loc:    time.Local,
		events: make(map[string][]ics.ParsedEvent),
	}
	for _, opt := range opts {
		opt(p)
	}
	clampTrip(&p.trip)
	if p.trip.Preferences == nil {
		p.trip.Preferences = model.DefaultPreferences()
	}

	for _, person := range people {
		person = person.Clone()
		if person.ID == "" {
			person.ID = uuid.NewString()
		}
		if person.Unavailable == nil {
			person.Unavailable = model.NewDaySet()
		}
		p.people = append(p.people, person)
	}
	if len(p.people) == 0 {
		p.people = append(p.people, model.Person{
			ID:          "1",
			Name:        "You",
			Unavailable: model.NewDaySet(),
			Derived:     model.NewDaySet(),
		})
	}
	p.selected = p.people[0].ID
	p.deriveAllLocked()
	return p
}

func clampTrip(t *model.Trip) {
	if t.DurationDays < 1 {
		t.DurationDays = 1
	}
	if t.CostPerPerson < 0 {
		t.CostPerPerson = 0
	}
}

// AddPerson appends a new person and selects them.
func (p *Planner) AddPerson(name string) (model.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Person{}, ErrEmptyName
	}

	person := model.Person{
		ID:          uuid.NewString(),
		Name:        name,
		Unavailable: model.NewDaySet(),
		Derived:     model.NewDaySet(),
	}

	p.mu.Lock()
	p.people = append(p.people, person)
	p.selected = person.ID
	p.mu.Unlock()

	appLog.Info("person added", "id", person.ID, "name", name)
	return person.Clone(), nil
}

// RemovePerson drops a person from the roster. If they were selected, the
// primary person becomes selected.
func (p *Planner) RemovePerson(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("remove %q: %w", id, ErrPersonNotFound)
	}
	if len(p.people) == 1 {
		return ErrLastPerson
	}
	if idx == 0 {
		return ErrPrimaryPerson
	}

	p.people = append(p.people[:idx], p.people[idx+1:]...)
	delete(p.events, id)
	if p.selected == id {
		p.selected = p.people[0].ID
	}
	appLog.Info("person removed", "id", id)
	return nil
}

// Select marks a person as the one whose dates are being edited.
func (p *Planner) Select(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indexLocked(id) < 0 {
		return fmt.Errorf("select %q: %w", id, ErrPersonNotFound)
	}
	p.selected = id
	return nil
}

// Selected returns the ID of the selected person.
func (p *Planner) Selected() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selected
}

// ToggleDate flips a manual unavailable day for a person and reports whether
// the day is now marked unavailable.
func (p *Planner) ToggleDate(id string, day model.Day) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexLocked(id)
	if idx < 0 {
		return false, fmt.Errorf("toggle %q: %w", id, ErrPersonNotFound)
	}
	if p.people[idx].Unavailable == nil {
		p.people[idx].Unavailable = model.NewDaySet()
	}
	now := p.people[idx].Unavailable.Toggle(day)
	appLog.Debug("date toggled", "id", id, "day", day.String(), "unavailable", now)
	return now, nil
}

// SetEvents replaces the imported calendar events of a person and returns
// how many derived days they now have in the current range.
func (p *Planner) SetEvents(id string, events []ics.ParsedEvent) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexLocked(id)
	if idx < 0 {
		return 0, fmt.Errorf("set events %q: %w", id, ErrPersonNotFound)
	}
	p.events[id] = append([]ics.ParsedEvent(nil), events...)
	p.deriveLocked(idx)
	return len(p.people[idx].Derived), nil
}

// Update applies fn to a copy of the trip settings and stores the result in
// one step, so readers never see a half-applied change. Duration and cost
// are clamped. A new range longer than model.MaxRangeDays is rejected and
// nothing changes; otherwise every person's derived days are recomputed.
func (p *Planner) Update(fn func(t *model.Trip)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.trip.Clone()
	fn(&next)
	clampTrip(&next)

	rangeChanged := next.Range != p.trip.Range
	if rangeChanged {
		if err := next.Range.CheckLength(); err != nil {
			return fmt.Errorf("update trip: %w", err)
		}
	}
	p.trip = next
	if rangeChanged {
		p.deriveAllLocked()
	}
	return nil
}

// SetName renames the trip.
func (p *Planner) SetName(name string) {
	_ = p.Update(func(t *model.Trip) { t.Name = name })
}

// SetDuration sets the trip length in days. Values below one are clamped.
func (p *Planner) SetDuration(days int) {
	_ = p.Update(func(t *model.Trip) { t.DurationDays = days })
}

// SetCost sets the per-person cost. Negative values are clamped to zero.
func (p *Planner) SetCost(cost int) {
	_ = p.Update(func(t *model.Trip) { t.CostPerPerson = cost })
}

// SetRange sets the candidate date range. An inverted range is stored as is
// and evaluates to no windows.
func (p *Planner) SetRange(r model.DayRange) error {
	return p.Update(func(t *model.Trip) { t.Range = r })
}

// TogglePreference flips a preference and returns its new state.
func (p *Planner) TogglePreference(id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.trip.Preferences {
		if p.trip.Preferences[i].ID == id {
			p.trip.Preferences[i].Selected = !p.trip.Preferences[i].Selected
			return p.trip.Preferences[i].Selected, nil
		}
	}
	return false, fmt.Errorf("toggle preference %q: %w", id, ErrPreferenceNotFound)
}

// Snapshot returns a deep copy of the current state.
func (p *Planner) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	people := make([]model.Person, len(p.people))
	for i, person := range p.people {
		people[i] = person.Clone()
	}
	return State{
		Trip:     p.trip.Clone(),
		People:   people,
		Selected: p.selected,
	}
}

// Evaluate searches the current state for available windows.
func (p *Planner) Evaluate() Result {
	st := p.Snapshot()
	windows := availability.FindAvailableWindows(st.Trip.Range, st.Trip.DurationDays, st.People)
	return Result{
		State:       st,
		Windows:     windows,
		Highlighted: availability.AvailableDays(windows),
	}
}

func (p *Planner) indexLocked(id string) int {
	for i := range p.people {
		if p.people[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Planner) deriveAllLocked() {
	for i := range p.people {
		p.deriveLocked(i)
	}
}

// deriveLocked recomputes people[i].Derived from rules and imported events
// for the current range.
func (p *Planner) deriveLocked(i int) {
	person := &p.people[i]
	r := p.trip.Range

	days, err := ics.ExpandRules(person.Rules, r, p.loc)
	if err != nil {
		appLog.Error("planner: bad unavailability rule", err, "person", person.ID)
	}
	if evs := p.events[person.ID]; len(evs) > 0 && r.Valid() {
		busy, err := ics.ExpandBusyDays(evs, ics.ExpandConfig{DisplayLocation: p.loc, Range: r})
		if err != nil {
			appLog.Error("planner: expand calendar failed", err, "person", person.ID)
		} else {
			days = days.Union(busy.Days)
		}
	}
	person.Derived = days
}
