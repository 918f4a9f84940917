// Package api is the HTTP control surface: trigger runs, inspect status, and
// manage the contact roster. It never performs browser work itself; runs go
// through the single-flight trigger so the API can never start two browser
// sessions at once.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"streakd/internal/config"
	"streakd/internal/contacts"
	"streakd/internal/runner"
)

// RunTrigger is the slice of the run trigger the API needs.
type RunTrigger interface {
	Fire(ctx context.Context, opts runner.Options) error
	Active() bool
	Last() *runner.Report
}

// Server hosts the control API.
type Server struct {
	cfg      config.Config
	log      *zap.Logger
	trigger  RunTrigger
	store    *contacts.Store
	metrics  *Metrics
	registry *prometheus.Registry
}

// NewServer builds the control API around an existing trigger and store.
func NewServer(cfg config.Config, log *zap.Logger, trigger RunTrigger, store *contacts.Store) *Server {
	registry := prometheus.NewRegistry()
	return &Server{
		cfg:      cfg,
		log:      log,
		trigger:  trigger,
		store:    store,
		metrics:  NewMetrics(registry),
		registry: registry,
	}
}

// Metrics exposes the server metrics so the scheduler can record its own
// trigger outcomes on the same registry.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Router wires all endpoints. The service info, health, and metrics
// endpoints are open; everything under /v1 and /status requires the API key
// when one is configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/status", s.handleStatus)
		r.Route("/v1", func(r chi.Router) {
			r.Post("/streak", s.handleStreak)
			r.Get("/contacts", s.handleContactsList)
			r.Post("/contacts", s.handleContactsAdd)
			r.Delete("/contacts/{nickname}", s.handleContactsRemove)
		})
	})
	return r
}

// Run serves the API until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.cfg.APIKey == "" {
		s.log.Warn("no API key configured, control endpoints are unauthenticated")
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control API listening", zap.String("addr", s.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// envelope is the uniform response shape for every JSON endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) != 1 {
				s.writeJSON(w, http.StatusUnauthorized, envelope{Message: "invalid or missing API key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{
		"service": "streakd",
		"purpose": "keep messaging streaks alive",
	}})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	data := map[string]any{
		"run_in_progress": s.trigger.Active(),
		"schedule_time":   s.cfg.ScheduleTime,
		"contact_count":   len(s.store.List()),
	}
	if last := s.trigger.Last(); last != nil {
		data["last_run"] = last
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// streakRequest is the optional POST /v1/streak body. An empty body runs the
// full roster with the configured message.
type streakRequest struct {
	Contacts []string `json:"contacts,omitempty"`
	Message  string   `json:"message,omitempty"`
	TestMode bool     `json:"test_mode,omitempty"`
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	var req streakRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, envelope{Message: "malformed request body"})
			return
		}
	}

	opts := runner.Options{
		Identities: req.Contacts,
		Message:    req.Message,
		TestMode:   req.TestMode,
		Headless:   s.cfg.Headless,
	}
	// The run outlives the request; it must not inherit the request context.
	if err := s.trigger.Fire(context.Background(), opts); err != nil {
		if errors.Is(err, runner.ErrRunInFlight) {
			s.metrics.RecordTrigger("api", false)
			s.writeJSON(w, http.StatusConflict, envelope{Message: err.Error()})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, envelope{Message: err.Error()})
		return
	}
	s.metrics.RecordTrigger("api", true)
	s.log.Info("streak run accepted", zap.Bool("test_mode", req.TestMode))
	s.writeJSON(w, http.StatusAccepted, envelope{Success: true, Message: "streak run started"})
}

func (s *Server) handleContactsList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"contacts": s.store.List(),
	}})
}

type contactRequest struct {
	Nickname string `json:"nickname"`
}

func (s *Server) handleContactsAdd(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Message: "malformed request body"})
		return
	}
	switch err := s.store.Add(req.Nickname); {
	case errors.Is(err, contacts.ErrEmptyNickname):
		s.writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()})
	case errors.Is(err, contacts.ErrExists):
		s.writeJSON(w, http.StatusConflict, envelope{Message: err.Error()})
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, envelope{Message: err.Error()})
	default:
		s.metrics.RecordContactOp("add")
		s.writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "contact added"})
	}
}

func (s *Server) handleContactsRemove(w http.ResponseWriter, r *http.Request) {
	nickname := chi.URLParam(r, "nickname")
	switch err := s.store.Remove(nickname); {
	case errors.Is(err, contacts.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, envelope{Message: err.Error()})
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, envelope{Message: err.Error()})
	default:
		s.metrics.RecordContactOp("remove")
		s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "contact removed"})
	}
}
