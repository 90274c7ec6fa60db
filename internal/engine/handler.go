package engine

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/comfortablynumb/quizmock/internal/fixtures"
	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/tracker"
	"go.uber.org/zap"
)

// ServeHTTP answers an incoming request as if it had been sent through RoundTrip
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serve(w, r, e, e.log)
}

// Handler serves incoming requests through any RoundTripper, such as a client-side
// integration that may not have an engine yet.
func Handler(rt http.RoundTripper, log *observability.Logger) http.Handler {
	if log == nil {
		log = observability.Nop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, rt, log)
	})
}

func serve(w http.ResponseWriter, r *http.Request, rt http.RoundTripper, log *observability.Logger) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	if out.URL.Scheme == "" {
		out.URL.Scheme = "http"
	}
	if out.URL.Host == "" {
		out.URL.Host = r.Host
	}

	resp, err := rt.RoundTrip(out)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		log.L().Warn("Request failed", zap.String("url", out.URL.String()), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, fixtures.ErrorBody(err.Error()))
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		log.L().Debug("Error writing response body", zap.Error(err))
	}
}

// Tracker exposes the request log
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tracker
}

// RequestLog returns every intercepted request in arrival order
func (e *Engine) RequestLog() []tracker.Entry {
	return e.tracker.Entries()
}

func (e *Engine) ClearRequestLog() {
	e.tracker.Clear()
	e.log.L().Debug("Request log cleared")
}

// SetSessionData stores a value for the lifetime of the engine
func (e *Engine) SetSessionData(key string, value interface{}) {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	e.session[key] = value
}

// SessionData returns the stored value and whether the key was set
func (e *Engine) SessionData(key string) (interface{}, bool) {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	v, ok := e.session[key]
	return v, ok
}

func (e *Engine) ClearSession() {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	e.session = make(map[string]interface{})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
