package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/comfortablynumb/quizmock/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Mock backend, any origin
	},
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type debugRequest struct {
	Enabled *bool `json:"enabled"`
}

type modeResponse struct {
	Mode     string   `json:"mode"`
	Modes    []string `json:"modes"`
	Services []string `json:"services"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.integ.Status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.integ.Config())
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	if err := s.integ.Enable(r.Context(), req.Mode); err != nil {
		s.writeModeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.integ.Status())
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.integ.Disable(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.integ.Status())
}

// handleReset drops saved state and re-initializes from the environment
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.integ.Reset(r.Context()); err != nil {
		s.log.L().Error("Reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.integ.Initialize(r.Context()); err != nil {
		s.log.L().Error("Re-initialization failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.integ.Status())
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	var req debugRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	s.integ.ToggleDebugLogging(r.Context(), req.Enabled)
	writeJSON(w, http.StatusOK, s.integ.Config())
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	resp := modeResponse{Mode: s.integ.Config().Mode}
	if e := s.integ.Engine(); e != nil {
		resp.Modes = e.Modes()
		resp.Services = e.EnabledServices()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mode == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"mode\": \"<name>\"}")
		return
	}

	if err := s.integ.SwitchMode(r.Context(), req.Mode); err != nil {
		s.writeModeError(w, err)
		return
	}
	s.handleGetMode(w, r)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	entries, err := s.integ.RequestLog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearRequests(w http.ResponseWriter, r *http.Request) {
	if err := s.integ.ClearRequestLog(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e := s.integ.Engine()
	if e == nil {
		writeError(w, http.StatusServiceUnavailable, "mocking is disabled")
		return
	}

	value, ok := e.SessionData(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "no session value")
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handleSetSession(w http.ResponseWriter, r *http.Request) {
	e := s.integ.Engine()
	if e == nil {
		writeError(w, http.StatusServiceUnavailable, "mocking is disabled")
		return
	}

	var value interface{}
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeError(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	e.SetSessionData(chi.URLParam(r, "key"), value)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if e := s.integ.Engine(); e != nil {
		e.ClearSession()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeModeError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrUnknownMode) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.L().Error("Mode change failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

// decodeOptional decodes a JSON body when there is one
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "Invalid request body")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
