// Package status_http serves the read-only status API: the latest session
// snapshot, the metrics registry and the fanout WebSocket.
package status_http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/fanout"
	"github.com/charleschow/funding-arb/internal/telemetry"
)

// SessionView is a session event plus its envelope identity.
type SessionView struct {
	SessionID string              `json:"session_id"`
	Symbol    string              `json:"symbol"`
	UpdatedAt time.Time           `json:"updated_at"`
	Session   events.SessionEvent `json:"session"`
}

type Server struct {
	router *mux.Router
	hub    *fanout.Server

	mu       sync.RWMutex
	sessions map[string]SessionView
	latest   string
}

func NewServer(bus *events.Bus, hub *fanout.Server) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		hub:      hub,
		sessions: make(map[string]SessionView),
	}
	bus.Subscribe(s.onSession, events.EventSession)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/session", s.handleLatestSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleSession).Methods("GET")
	api.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.HandleWS)
	}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

func (s *Server) onSession(e events.Event) error {
	se, ok := e.Payload.(events.SessionEvent)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[e.SessionID] = SessionView{
		SessionID: e.SessionID,
		Symbol:    e.Symbol,
		UpdatedAt: e.Timestamp,
		Session:   se,
	}
	s.latest = e.SessionID
	return nil
}

// Handler is the router wrapped in CORS for local dashboards.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	telemetry.Plainf("status: listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	view, ok := s.sessions[s.latest]
	s.mu.RUnlock()
	if !ok {
		respondError(w, http.StatusNotFound, "no session yet")
		return
	}
	respondJSON(w, view)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	view, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, view)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, telemetry.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.hub != nil {
		resp["watchers"] = s.hub.Clients()
	}
	respondJSON(w, resp)
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		telemetry.Warnf("status: encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
