// Package server exposes the HTTP surface of the E-Lib service.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"elib/internal/app"
	"elib/internal/domain"
	"elib/internal/ratelimit"
	"elib/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Development    bool
	FrontendOrigin string
	MaxUploadBytes int64

	RegisterLimiter *ratelimit.FixedWindowLimiter
	LoginLimiter    *ratelimit.FixedWindowLimiter
}

// Server routes requests to the application services.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	development     bool
	frontendOrigin  string
	maxUploadBytes  int64
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10_000_000
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		development:     cfg.Development,
		frontendOrigin:  cfg.FrontendOrigin,
		maxUploadBytes:  maxUploadBytes,
		registerLimiter: cfg.RegisterLimiter,
		loginLimiter:    cfg.LoginLimiter,
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in the shared middleware.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog(
			util.WithSecurityHeaders(
				util.WithCORS(s.frontendOrigin, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/readyz", s.handleReady)

	// users
	s.mux.HandleFunc("/api/users/register", s.handleRegister)
	s.mux.HandleFunc("/api/users/login", s.handleLogin)

	// books
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, r, domain.NotFound("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the E-Lib API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.app.Ready(ctx); err != nil {
		s.writeError(w, r, domain.Upstream("database not ready", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// userHandler receives the authenticated caller's user id as an explicit
// argument; handlers never dig identity out of the raw request.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// requireUser verifies the bearer token and passes the subject downstream.
// Any failure short-circuits with 401 before further processing.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request, next userHandler) {
	tokenString, ok := bearerToken(r)
	if !ok {
		s.writeError(w, r, domain.Authentication("authorization token is required"))
		return
	}
	userID, err := s.app.UserIDFromToken(tokenString)
	if err != nil {
		s.writeError(w, r, domain.Authentication("token expired or invalid"))
		return
	}
	next(w, r, userID)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenString == "" {
		return "", false
	}
	return tokenString, true
}
