package config

import (
	"time"

	"tripcal/internal/model"
)

// TripModel builds the initial trip settings.
func (c *Config) TripModel(now time.Time) model.Trip {
	return model.Trip{
		Name:          c.Trip.Name,
		DurationDays:  c.Trip.DurationDays,
		CostPerPerson: c.Trip.CostPerPerson,
		Range:         c.TripRange(now),
		Preferences:   append([]model.Preference(nil), c.Trip.Preferences...),
	}
}

// Roster builds the initial people list. Manual unavailable days are
// de-duplicated into a set; rules and calendars are carried for refresh.
func (c *Config) Roster() []model.Person {
	people := make([]model.Person, 0, len(c.People))
	for _, pc := range c.People {
		people = append(people, model.Person{
			ID:          pc.ID,
			Name:        pc.Name,
			Unavailable: model.NewDaySet(pc.Unavailable...),
			Derived:     model.NewDaySet(),
			Rules:       append([]string(nil), pc.Rules...),
			Calendars:   append([]string(nil), pc.Calendars...),
		})
	}
	return people
}
