// Package ui serves the browser debug panel for the mock control API.
package ui

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/comfortablynumb/quizmock/internal/observability"
	"go.uber.org/zap"
)

var dashboard = template.Must(template.New("dashboard").Parse(dashboardHTML))

type dashboardData struct {
	// APIBase is where the control routes live, e.g. /__mock
	APIBase string
}

// Handler renders the debug panel. The page talks to the control API under apiBase.
func Handler(apiBase string, log *observability.Logger) (http.Handler, error) {
	if log == nil {
		log = observability.Nop()
	}

	var buf bytes.Buffer
	if err := dashboard.Execute(&buf, dashboardData{APIBase: apiBase}); err != nil {
		return nil, err
	}
	page := buf.Bytes()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(page); err != nil {
			log.L().Debug("Error writing dashboard", zap.Error(err))
		}
	}), nil
}
