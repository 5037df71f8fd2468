// Package server exposes the sync service over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"

	"datasync/internal/observability"
	"datasync/internal/service"
	"datasync/pkg/models"
)

// Server routes HTTP requests to the service.
type Server struct {
	svc    *service.Service
	system *observability.System
	hub    *Hub
	prefix string
}

// New creates a server mounting its routes under prefix.
func New(svc *service.Service, system *observability.System, hub *Hub, prefix string) *Server {
	return &Server{svc: svc, system: system, hub: hub, prefix: normalizePrefix(prefix)}
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	return "/" + strings.Trim(prefix, "/")
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /config", s.getConfig)
	s.handle(mux, "POST /config", s.postConfig)
	s.handle(mux, "GET /git/status", s.gitStatus)
	s.handle(mux, "POST /git/init", s.gitInit)

	s.handle(mux, "POST /git/sync/push", s.syncRoute(s.svc.Push))
	s.handle(mux, "POST /git/sync/pull", s.syncRoute(s.svc.Pull))
	s.handle(mux, "POST /git/sync/force-overwrite-local", s.syncRoute(s.svc.ForceLocal))
	s.handle(mux, "POST /git/sync/force-overwrite-remote", s.syncRoute(s.svc.ForceRemote))
	s.handle(mux, "POST /undo-sync", s.undo)
	s.handle(mux, "GET /undo-availability", s.undoAvailability)

	s.handle(mux, "POST /auth/token", s.authToken)
	s.handle(mux, "GET /auth/status", s.authStatus)
	s.handle(mux, "GET /auth/github/authorize", s.authorize)
	s.handle(mux, "POST /auth/github/callback", s.callback)

	s.handle(mux, "GET /health", s.system.Health.HealthHandler())
	s.handle(mux, "GET /metrics", s.system.Metrics.Handler().ServeHTTP)
	if s.hub != nil {
		s.handle(mux, "GET /events", s.hub.ServeHTTP)
	}

	if s.prefix == "" {
		return mux
	}
	root := http.NewServeMux()
	root.Handle(s.prefix+"/", http.StripPrefix(s.prefix, mux))
	return root
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	route := pattern[strings.IndexByte(pattern, ' ')+1:]
	mux.HandleFunc(pattern, s.system.InstrumentHTTPHandler(s.prefix+route, h))
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Config())
}

type configSaved struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	var update models.ConfigUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.svc.UpdateConfig(r.Context(), update)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.RemoteError != "" {
		writeJSON(w, http.StatusOK, configSaved{
			Success: true,
			Message: "Configuration saved, but configuring the remote failed",
			Error:   result.RemoteError,
		})
		return
	}
	writeJSON(w, http.StatusOK, configSaved{Success: true, Message: "Configuration saved"})
}

func (s *Server) gitStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Failed to read git status: " + errorMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type initBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) gitInit(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Init(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, initBody{Success: true, Message: result.Message, Warning: result.Warning})
}

func (s *Server) syncRoute(op func(ctx context.Context) *models.Outcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := op(r.Context())
		writeSyncOutcome(w, out, s.svc.UndoAvailability().Available)
	}
}

func (s *Server) undo(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Undo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeUndoOutcome(w, out)
}

func (s *Server) undoAvailability(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.UndoAvailability())
}

type tokenRequest struct {
	Token string `json:"token"`
}

type authResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

func (s *Server) authToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	login, err := s.svc.SetToken(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResult{Success: true, Message: "Token saved", Username: login})
}

func (s *Server) authStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.AuthStatus())
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	target, err := s.svc.AuthorizeURL()
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	login, err := s.svc.CompleteOAuth(r.Context(), req.Code, req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResult{Success: true, Message: "GitHub authorization succeeded", Username: login})
}
