package server

import (
	"net/http"

	"github.com/comfortablynumb/quizmock/internal/recorder"
	"go.uber.org/zap"
)

type recordingStatus struct {
	Enabled    bool                 `json:"enabled"`
	Count      int                  `json:"count"`
	Routes     []string             `json:"routes"`
	Recordings []recorder.Recording `json:"recordings"`
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, recordingStatus{
		Enabled:    s.recorder.IsEnabled(),
		Count:      s.recorder.Count(),
		Routes:     s.recorder.Routes(),
		Recordings: s.recorder.Recordings(),
	})
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	s.recorder.Start()
	s.log.L().Info("Recording started")
	s.handleRecording(w, r)
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	s.recorder.Stop()
	s.log.L().Info("Recording stopped", zap.Int("recordings", s.recorder.Count()))
	s.handleRecording(w, r)
}

func (s *Server) handleRecordingClear(w http.ResponseWriter, r *http.Request) {
	s.recorder.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleRecordingManifest downloads the recordings as a manifest file
func (s *Server) handleRecordingManifest(w http.ResponseWriter, r *http.Request) {
	data, err := s.recorder.ExportYAML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="recorded.yaml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
