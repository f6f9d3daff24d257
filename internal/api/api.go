// Package api provides the VOC ticket API server.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/geonhos/poc-voc-auto-processing/internal/auth"
)

// Server is the HTTP API server.
type Server struct {
	service      TicketService
	authVerifier *auth.Verifier
	mux          *http.ServeMux
}

// Config holds API server configuration. A nil AuthVerifier disables
// authentication on admin actions; the server then runs in dev mode.
type Config struct {
	Service      TicketService
	AuthVerifier *auth.Verifier
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		service:      cfg.Service,
		authVerifier: cfg.AuthVerifier,
		mux:          http.NewServeMux(),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	admin := s.adminMiddleware()

	// Public endpoints
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/voc", s.handleCreateVOC)
	s.mux.HandleFunc("GET /api/tickets", s.handleListTickets)
	s.mux.HandleFunc("GET /api/tickets/{ref}", s.handleGetTicket)

	// Admin actions on proposed analyses
	s.mux.HandleFunc("POST /api/tickets/{ref}/confirm", s.withAuth(admin, s.handleConfirm))
	s.mux.HandleFunc("POST /api/tickets/{ref}/reject", s.withAuth(admin, s.handleReject))
	s.mux.HandleFunc("POST /api/tickets/{ref}/retry", s.withAuth(admin, s.handleRetry))
	s.mux.HandleFunc("POST /api/tickets/{ref}/complete", s.withAuth(admin, s.handleCompleteManual))
}

// adminMiddleware returns the middleware guarding admin actions. Without a
// configured verifier the actions are open, which is only acceptable in
// local development.
func (s *Server) adminMiddleware() func(http.Handler) http.Handler {
	if s.authVerifier == nil {
		return auth.OptionalMiddleware(nil)
	}
	return auth.Middleware(s.authVerifier)
}

func (s *Server) withAuth(middleware func(http.Handler) http.Handler, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware(http.HandlerFunc(handler)).ServeHTTP(w, r)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
