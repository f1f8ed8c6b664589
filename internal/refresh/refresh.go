// Package refresh keeps each person's imported calendar events current by
// re-downloading them on a schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tripcal/internal/ics"
	appLog "tripcal/internal/log"
	"tripcal/internal/model"
	"tripcal/internal/planner"
)

// Fetcher is the subset of ics.Fetcher the syncer needs.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Report summarizes one sync run.
type Report struct {
	People   int           `json:"people"`
	Sources  int           `json:"sources"`
	Failed   int           `json:"failed"`
	BusyDays int           `json:"busy_days"`
	Took     time.Duration `json:"took"`
}

// Syncer downloads calendars and pushes their events into a planner.
type Syncer struct {
	planner *planner.Planner
	fetcher Fetcher
	loc     *time.Location

	// runMu keeps scheduled and manual runs from overlapping.
	runMu sync.Mutex
	cron  *cron.Cron
}

// NewSyncer creates a Syncer. loc is the zone the schedule runs in.
func NewSyncer(p *planner.Planner, f Fetcher, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.Local
	}
	return &Syncer{planner: p, fetcher: f, loc: loc}
}

// RunOnce downloads every person's calendars and hands the parsed events to
// the planner, which expands them for the current trip range. A person whose
// calendars all failed keeps their previous events; partial failures are
// logged and the rest is applied.
func (s *Syncer) RunOnce(ctx context.Context) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	began := time.Now()
	st := s.planner.Snapshot()
	r := st.Trip.Range
	rep := Report{People: len(st.People)}

	if !r.Valid() {
		return rep, fmt.Errorf("refresh: invalid trip range %s..%s", r.From, r.To)
	}

	for _, person := range st.People {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if len(person.Calendars) == 0 {
			continue
		}

		events, sources, failed := s.fetchPerson(ctx, person)
		rep.Sources += sources
		rep.Failed += failed
		if failed == sources {
			appLog.Error("refresh: all calendars failed; keeping previous days", errors.New("no calendar data"), "person", person.ID)
			continue
		}

		busy, err := s.planner.SetEvents(person.ID, events)
		if err != nil {
			// Removed while we were fetching.
			appLog.Debug("refresh: person gone", "person", person.ID)
			continue
		}
		rep.BusyDays += busy
	}

	rep.Took = time.Since(began)
	appLog.Info("refresh completed",
		"people", rep.People,
		"sources", rep.Sources,
		"failed", rep.Failed,
		"busy_days", rep.BusyDays,
		"took", rep.Took.String(),
	)
	return rep, nil
}

func (s *Syncer) fetchPerson(ctx context.Context, person model.Person) ([]ics.ParsedEvent, int, int) {
	sources := make([]ics.Source, 0, len(person.Calendars))
	for _, u := range person.Calendars {
		sources = append(sources, ics.Source{PersonID: person.ID, URL: u})
	}

	results, errs := s.fetcher.FetchAll(ctx, sources)
	failed := len(errs)

	var events []ics.ParsedEvent
	for _, res := range results {
		evs, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			failed++
			continue
		}
		events = append(events, evs...)
	}
	return events, len(sources), failed
}

// Start schedules RunOnce on spec (standard 5-field cron) and runs it once
// immediately. It returns when the schedule is installed; Stop ends it.
func (s *Syncer) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh: schedule %q: %w", spec, err)
	}

	if _, err := s.RunOnce(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}

	s.cron = c
	c.Start()
	appLog.Info("refresh scheduled", "cron", spec)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Syncer) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
