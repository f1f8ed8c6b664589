package web

import (
	"net/http"
	"strconv"

	"tripcal/internal/availability"
	"tripcal/internal/ics"
	appLog "tripcal/internal/log"
	"tripcal/internal/model"
	"tripcal/internal/planner"
)

// tripDTO is the JSON view of the trip settings.
type tripDTO struct {
	Name          string             `json:"name"`
	DurationDays  int                `json:"duration_days"`
	CostPerPerson int                `json:"cost_per_person"`
	Range         model.DayRange     `json:"range"`
	Preferences   []model.Preference `json:"preferences"`
}

// personDTO is the JSON view of a roster entry.
type personDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Primary     bool        `json:"primary"`
	Selected    bool        `json:"selected"`
	Unavailable []model.Day `json:"unavailable"`
	Derived     []model.Day `json:"derived"`
	Rules       []string    `json:"rules,omitempty"`
	Calendars   int         `json:"calendars"`
}

// windowsResponse is the JSON response shape for /api/windows.
type windowsResponse struct {
	Trip        tripDTO            `json:"trip"`
	Count       int                `json:"count"`
	Windows     []model.TripWindow `json:"windows"`
	Highlighted []model.Day        `json:"highlighted"`
}

// dayDTO describes one day of the trip range for calendar highlighting.
type dayDTO struct {
	Date        model.Day `json:"date"`
	Unavailable bool      `json:"unavailable"` // for the selected person
	Highlighted bool      `json:"highlighted"` // inside at least one window
	BlockedBy   []string  `json:"blocked_by,omitempty"`
}

type daysResponse struct {
	Selected string   `json:"selected"`
	Days     []dayDTO `json:"days"`
}

type updateTripRequest struct {
	Name          *string    `json:"name"`
	DurationDays  *int       `json:"duration_days"`
	CostPerPerson *int       `json:"cost_per_person"`
	From          *model.Day `json:"from"`
	To            *model.Day `json:"to"`
}

type addPersonRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type toggleDateResponse struct {
	PersonID    string    `json:"person_id"`
	Date        model.Day `json:"date"`
	Unavailable bool      `json:"unavailable"`
}

// findRequest is a stateless search: nothing in the planner is touched.
type findRequest struct {
	Range        model.DayRange `json:"range"`
	DurationDays int            `json:"duration_days"`
	People       []struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		Unavailable []model.Day `json:"unavailable"`
	} `json:"people"`
}

type findResponse struct {
	Windows []model.TripWindow `json:"windows"`
}

func toTripDTO(t model.Trip) tripDTO {
	return tripDTO{
		Name:          t.Name,
		DurationDays:  t.DurationDays,
		CostPerPerson: t.CostPerPerson,
		Range:         t.Range,
		Preferences:   t.Preferences,
	}
}

func toPersonDTOs(st planner.State) []personDTO {
	out := make([]personDTO, 0, len(st.People))
	for i, p := range st.People {
		out = append(out, personDTO{
			ID:          p.ID,
			Name:        p.Name,
			Primary:     i == 0,
			Selected:    p.ID == st.Selected,
			Unavailable: p.Unavailable.Sorted(),
			Derived:     p.Derived.Sorted(),
			Rules:       p.Rules,
			// Calendar URLs may carry tokens; only the count is exposed.
			Calendars: len(p.Calendars),
		})
	}
	return out
}

func (s *Server) handleGetTrip(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toTripDTO(s.planner.Snapshot().Trip))
}

// handleUpdateTrip applies a partial update in one step. Only fields present
// in the body change; duration and cost are clamped like the planner's
// setters, and a range longer than model.MaxRangeDays is a 400.
func (s *Server) handleUpdateTrip(w http.ResponseWriter, r *http.Request) {
	var req updateTripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := s.planner.Update(func(t *model.Trip) {
		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.DurationDays != nil {
			t.DurationDays = *req.DurationDays
		}
		if req.CostPerPerson != nil {
			t.CostPerPerson = *req.CostPerPerson
		}
		if req.From != nil {
			t.Range.From = *req.From
		}
		if req.To != nil {
			t.Range.To = *req.To
		}
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	trip := s.planner.Snapshot().Trip
	appLog.Info("trip updated", "name", trip.Name, "duration_days", trip.DurationDays, "from", trip.Range.From.String(), "to", trip.Range.To.String())
	writeJSON(w, http.StatusOK, toTripDTO(trip))
}

func (s *Server) handleTogglePreference(w http.ResponseWriter, r *http.Request) {
	if _, err := s.planner.TogglePreference(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toTripDTO(s.planner.Snapshot().Trip))
}

func (s *Server) handleListPeople(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toPersonDTOs(s.planner.Snapshot()))
}

func (s *Server) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	var req addPersonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	person, err := s.planner.AddPerson(req.Name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, personDTO{
		ID:          person.ID,
		Name:        person.Name,
		Selected:    true,
		Unavailable: []model.Day{},
		Derived:     []model.Day{},
	})
}

func (s *Server) handleRemovePerson(w http.ResponseWriter, r *http.Request) {
	if err := s.planner.RemovePerson(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectPerson(w http.ResponseWriter, r *http.Request) {
	if err := s.planner.Select(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTOs(s.planner.Snapshot()))
}

func (s *Server) handleToggleDate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	day, err := model.ParseDay(r.PathValue("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: "+err.Error())
		return
	}

	now, err := s.planner.ToggleDate(id, day)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toggleDateResponse{PersonID: id, Date: day, Unavailable: now})
}

// handleWindows evaluates the current trip from scratch.
//
// GET /api/windows?limit=N
//   - limit: return at most N windows (default: all). count is always the total.
func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	res := s.planner.Evaluate()

	windows := res.Windows
	if limit := parseIntDefault(r.URL.Query().Get("limit"), 0); limit > 0 && limit < len(windows) {
		windows = windows[:limit]
	}

	writeJSON(w, http.StatusOK, windowsResponse{
		Trip:        toTripDTO(res.Trip),
		Count:       len(res.Windows),
		Windows:     windows,
		Highlighted: res.Highlighted.Sorted(),
	})
}

func (s *Server) handleWindowsICS(w http.ResponseWriter, _ *http.Request) {
	res := s.planner.Evaluate()
	body := ics.ExportWindows(res.Trip, res.Windows, s.now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="trip-windows.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleDays returns one entry per day of the trip range: whether the
// selected person marked it, who blocks it, and whether it is highlighted.
func (s *Server) handleDays(w http.ResponseWriter, _ *http.Request) {
	res := s.planner.Evaluate()
	blockers := availability.Blockers(res.Trip.Range, res.People)

	var selected model.Person
	for _, p := range res.People {
		if p.ID == res.Selected {
			selected = p
			break
		}
	}

	days := make([]dayDTO, 0, res.Trip.Range.Len())
	for _, d := range res.Trip.Range.Days() {
		days = append(days, dayDTO{
			Date:        d,
			Unavailable: selected.IsUnavailable(d),
			Highlighted: res.Highlighted.Has(d),
			BlockedBy:   blockers[d],
		})
	}
	writeJSON(w, http.StatusOK, daysResponse{Selected: res.Selected, Days: days})
}

// handleFind runs the search on the request body alone. Degenerate input
// returns an empty list, never an error; an undecodable body or a range
// longer than model.MaxRangeDays is a 400.
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := req.Range.CheckLength(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	people := make([]model.Person, 0, len(req.People))
	for _, p := range req.People {
		people = append(people, model.Person{
			ID:          p.ID,
			Name:        p.Name,
			Unavailable: model.NewDaySet(p.Unavailable...),
		})
	}

	windows := availability.FindAvailableWindows(req.Range, req.DurationDays, people)
	writeJSON(w, http.StatusOK, findResponse{Windows: windows})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	rep, err := s.refresher.RunOnce(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusInternalServerError, "refresh failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
