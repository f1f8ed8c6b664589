package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"tripcal/internal/config"
	appLog "tripcal/internal/log"
	"tripcal/internal/model"
	"tripcal/internal/planner"
	"tripcal/internal/refresh"
)

// Refresher re-reads calendars and rules on demand.
type Refresher interface {
	RunOnce(ctx context.Context) (refresh.Report, error)
}

// Server exposes the trip planner over HTTP.
type Server struct {
	cfg       *config.Config
	planner   *planner.Planner
	refresher Refresher
	mux       *http.ServeMux
	validate  *validator.Validate

	// now is swapped in tests.
	now func() time.Time
}

// NewServer constructs a new Server. refresher may be nil, in which case
// POST /api/refresh answers 503.
func NewServer(cfg *config.Config, p *planner.Planner, refresher Refresher) *Server {
	s := &Server{
		cfg:       cfg,
		planner:   p,
		refresher: refresher,
		mux:       http.NewServeMux(),
		validate:  validator.New(),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured with both
// a username and a password.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tripcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/trip", s.handleGetTrip)
	s.mux.HandleFunc("PUT /api/trip", s.handleUpdateTrip)
	s.mux.HandleFunc("POST /api/trip/preferences/{id}/toggle", s.handleTogglePreference)

	s.mux.HandleFunc("GET /api/people", s.handleListPeople)
	s.mux.HandleFunc("POST /api/people", s.handleAddPerson)
	s.mux.HandleFunc("DELETE /api/people/{id}", s.handleRemovePerson)
	s.mux.HandleFunc("POST /api/people/{id}/select", s.handleSelectPerson)
	s.mux.HandleFunc("POST /api/people/{id}/dates/{day}", s.handleToggleDate)

	s.mux.HandleFunc("GET /api/windows", s.handleWindows)
	s.mux.HandleFunc("GET /api/windows.ics", s.handleWindowsICS)
	s.mux.HandleFunc("GET /api/days", s.handleDays)
	s.mux.HandleFunc("POST /api/find", s.handleFind)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps planner errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, planner.ErrPersonNotFound), errors.Is(err, planner.ErrPreferenceNotFound):
		return http.StatusNotFound
	case errors.Is(err, planner.ErrPrimaryPerson), errors.Is(err, planner.ErrLastPerson):
		return http.StatusConflict
	case errors.Is(err, planner.ErrEmptyName), errors.Is(err, model.ErrRangeTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
