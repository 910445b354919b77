package server

import (
	"encoding/json"
	"net/http"

	"elib/internal/domain"
	"elib/internal/util"
)

// errorResponse is the wire shape of every error. ErrorStack carries
// internal detail in development mode only.
type errorResponse struct {
	Message    string `json:"message"`
	ErrorStack string `json:"errorstack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError is the single boundary translating error kinds to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(domain.KindOf(err))
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
	}
	body := errorResponse{Message: domain.ClientMessage(err)}
	if s.development {
		body.ErrorStack = err.Error()
	}
	writeJSON(w, status, body)
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		// The public API reports a duplicate email as a plain 400.
		return http.StatusBadRequest
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "method not allowed"})
}

func (s *Server) tooManyRequests(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "too many requests, slow down"})
}
