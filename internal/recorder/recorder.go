package recorder

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// ServiceName is the service every exported endpoint belongs to
const ServiceName = "recorded"

// MaxRecordings caps memory use while recording is left on
const MaxRecordings = 1000

var skippedHeaders = map[string]bool{
	"Content-Type":      true,
	"Content-Length":    true,
	"Date":              true,
	"Connection":        true,
	"Transfer-Encoding": true,
}

// Recording is one request/response pair seen on its way to the real backend
type Recording struct {
	Timestamp time.Time         `json:"timestamp"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Query     string            `json:"query,omitempty"`
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
}

// Recorder wraps the real backend transport and captures JSON responses while enabled
type Recorder struct {
	next http.RoundTripper
	now  func() time.Time

	mu         sync.RWMutex
	enabled    bool
	recordings []Recording
}

// NewRecorder records what next returns. Recording starts disabled.
func NewRecorder(next http.RoundTripper) *Recorder {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Recorder{
		next:       next,
		now:        time.Now,
		recordings: make([]Recording, 0),
	}
}

// IsEnabled returns whether recording is currently enabled
func (r *Recorder) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Start enables recording and drops previous recordings
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
	r.recordings = make([]Recording, 0)
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
}

// RoundTrip forwards the request and keeps a copy of the response.
// Bodies that are neither empty nor JSON are not recorded.
func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil || !r.IsEnabled() {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if len(body) > 0 && !gjson.ValidBytes(body) {
		return resp, nil
	}

	rec := Recording{
		Timestamp: r.now(),
		Method:    req.Method,
		Path:      req.URL.Path,
		Query:     req.URL.RawQuery,
		Status:    resp.StatusCode,
		Body:      string(body),
	}
	for key := range resp.Header {
		if skippedHeaders[key] {
			continue
		}
		if rec.Headers == nil {
			rec.Headers = make(map[string]string)
		}
		rec.Headers[key] = resp.Header.Get(key)
	}

	r.mu.Lock()
	if r.enabled {
		r.recordings = append(r.recordings, rec)
		if len(r.recordings) > MaxRecordings {
			r.recordings = r.recordings[len(r.recordings)-MaxRecordings:]
		}
	}
	r.mu.Unlock()

	return resp, nil
}

// Recordings returns all recordings in arrival order
func (r *Recorder) Recordings() []Recording {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recordings := make([]Recording, len(r.recordings))
	copy(recordings, r.recordings)
	return recordings
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordings = make([]Recording, 0)
}

func (r *Recorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recordings)
}

// ExportManifest converts recordings into a manifest with a single service and a mode
// of the same name. Repeated routes keep the latest response, in first-seen order.
func (r *Recorder) ExportManifest() *models.Manifest {
	recordings := r.Recordings()

	order := make([]string, 0)
	latest := make(map[string]Recording)
	for _, rec := range recordings {
		key := rec.Method + " " + rec.Path
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = rec
	}

	endpoints := make([]models.Endpoint, 0, len(order))
	for _, key := range order {
		rec := latest[key]
		endpoints = append(endpoints, models.Endpoint{
			Path:    rec.Path,
			Method:  rec.Method,
			Status:  rec.Status,
			Headers: rec.Headers,
			Body:    strings.TrimSpace(rec.Body),
		})
	}

	return &models.Manifest{
		Version: "1.0.0",
		Modes: map[string]models.Mode{
			ServiceName: {
				Name:        "Recorded",
				Description: "Responses captured from the real backend",
				Enabled:     []string{ServiceName},
			},
		},
		Services: []models.Service{{
			Name:      ServiceName,
			Endpoints: endpoints,
		}},
		RealtimeModes: []string{},
	}
}

// ExportYAML renders ExportManifest in the manifest file format
func (r *Recorder) ExportYAML() ([]byte, error) {
	return yaml.Marshal(r.ExportManifest())
}

// Routes lists the distinct recorded routes, sorted
func (r *Recorder) Routes() []string {
	seen := make(map[string]bool)
	for _, rec := range r.Recordings() {
		seen[rec.Method+" "+rec.Path] = true
	}
	routes := make([]string, 0, len(seen))
	for route := range seen {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}
