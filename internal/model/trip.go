package model

// Person is a trip participant.
//
// Unavailable holds days toggled by hand. Derived holds days computed from
// the person's Rules and Calendars on the last refresh; it is replaced
// wholesale and never edited by toggles.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Unavailable DaySet `json:"-"`
	Derived     DaySet `json:"-"`

	// Rules are RRULE strings (e.g. "FREQ=WEEKLY;BYDAY=SA,SU").
	Rules []string `json:"rules,omitempty"`
	// Calendars are ICS subscription URLs whose events mark busy days.
	Calendars []string `json:"calendars,omitempty"`
}

// Blocked returns the effective unavailable set: manual plus derived days.
func (p Person) Blocked() DaySet {
	return p.Unavailable.Union(p.Derived)
}

// IsUnavailable reports whether the person cannot travel on d.
func (p Person) IsUnavailable(d Day) bool {
	return p.Unavailable.Has(d) || p.Derived.Has(d)
}

// Clone returns a deep copy.
func (p Person) Clone() Person {
	out := p
	out.Unavailable = p.Unavailable.Clone()
	out.Derived = p.Derived.Clone()
	out.Rules = append([]string(nil), p.Rules...)
	out.Calendars = append([]string(nil), p.Calendars...)
	return out
}

// TripWindow is a candidate trip: Start..End inclusive.
type TripWindow struct {
	Start Day `json:"start"`
	End   Day `json:"end"`
}

// Len is the number of days in the window.
func (w TripWindow) Len() int {
	return int(w.End-w.Start) + 1
}

// Contains reports whether d lies within the window.
func (w TripWindow) Contains(d Day) bool {
	return d >= w.Start && d <= w.End
}

// Preference is a selectable trip theme.
type Preference struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label" yaml:"label"`
	Selected bool   `json:"selected" yaml:"selected"`
}

// DefaultPreferences is the initial preference list for a new trip.
func DefaultPreferences() []Preference {
	return []Preference{
		{ID: "1", Label: "Beach"},
		{ID: "2", Label: "City"},
		{ID: "3", Label: "Party"},
		{ID: "4", Label: "Sun"},
		{ID: "5", Label: "Activity"},
		{ID: "6", Label: "Sights"},
	}
}

// Trip holds the user-editable trip settings.
type Trip struct {
	Name          string       `json:"name"`
	DurationDays  int          `json:"duration_days"`
	CostPerPerson int          `json:"cost_per_person"`
	Range         DayRange     `json:"range"`
	Preferences   []Preference `json:"preferences"`
}

// Clone returns a deep copy.
func (t Trip) Clone() Trip {
	out := t
	out.Preferences = append([]Preference(nil), t.Preferences...)
	return out
}
