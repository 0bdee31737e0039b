// Package settingsapi exposes the language preference over local HTTP. It
// is the replacement for an options page: a small JSON surface the user (or
// a UI in front of it) reads and writes, with every accepted write fanned
// out to the page keepers through the relay.
package settingsapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sharedock/sharedock/i18n"
	"github.com/sharedock/sharedock/relay"
	"github.com/sharedock/sharedock/settings"
)

// Service serves the settings endpoints.
type Service struct {
	store  *settings.Store
	relay  *relay.Relay
	logger *slog.Logger
}

// New creates the service. relay may be nil; updates are then persisted but
// not pushed to open tabs until their next rebuild.
func New(store *settings.Store, r *relay.Relay, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, relay: r, logger: logger}
}

// Router builds the HTTP handler.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/settings", s.handleGet)
	r.Put("/api/settings", s.handlePut)
	r.Get("/api/languages", s.handleLanguages)
	r.Get("/api/actions", s.handleActions)

	return r
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	pref, err := s.store.Get(r.Context())
	if err != nil {
		s.logger.Error("settingsapi: read preference", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

func (s *Service) handlePut(w http.ResponseWriter, r *http.Request) {
	var pref settings.Preference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !pref.Valid() {
		http.Error(w, "mode must be auto or manual", http.StatusBadRequest)
		return
	}
	if pref.Mode == settings.ModeManual && !i18n.Supported(pref.Language) {
		http.Error(w, "unsupported language", http.StatusBadRequest)
		return
	}

	if err := s.store.Set(r.Context(), pref); err != nil {
		s.logger.Error("settingsapi: write preference", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// Open tabs rebuild their control with the new strings.
	if s.relay != nil {
		s.relay.Broadcast(relay.TypeSettingsUpdated)
	}

	s.logger.Info("settingsapi: preference updated",
		"mode", pref.Mode, "language", pref.Language)
	writeJSON(w, http.StatusOK, pref)
}

func (s *Service) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": i18n.Available(),
	})
}

func (s *Service) handleActions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.store.RecentActions(r.Context(), limit)
	if err != nil {
		s.logger.Error("settingsapi: read actions", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []settings.ActionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
