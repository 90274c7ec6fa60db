package template

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// RequestData holds the intercepted request data for template rendering
type RequestData struct {
	Method   string
	URL      string
	Path     string
	RawQuery string
	Headers  map[string]string
	Body     string
	Params   map[string]string
}

// NewRequestData creates RequestData from an http.Request.
// The request body is read and restored so later readers still see it.
func NewRequestData(r *http.Request, params map[string]string) *RequestData {
	headers := make(map[string]string)
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err == nil {
			body = string(data)
		}
		r.Body = io.NopCloser(bytes.NewReader(data))
	}

	return &RequestData{
		Method:   r.Method,
		URL:      r.URL.String(),
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Headers:  headers,
		Body:     body,
		Params:   params,
	}
}

// Renderer handles template rendering with helper functions
type Renderer struct {
	src     Source
	funcMap template.FuncMap
}

// NewRenderer creates a new template renderer drawing randomness from src
func NewRenderer(src Source) *Renderer {
	r := &Renderer{src: src}
	r.funcMap = template.FuncMap{
		// String generators
		"uuid":         func() string { return uuid.NewString() },
		"randomString": func(n int) string { return RandomString(r.src, n) },
		"randomInt":    func(min, max int) int { return RandomInt(r.src, min, max) },
		"randomFloat":  func() float64 { return r.src.Float64() },
		"randomBool":   func() bool { return r.src.Intn(2) == 1 },

		// Quiz generators
		"playerName":  func() string { return PlayerName(r.src) },
		"chatMessage": func() string { return ChatMessage(r.src) },
		"joinCode":    func() string { return JoinCode(r.src) },

		// Time generators
		"now":       time.Now,
		"timestamp": func() int64 { return time.Now().UnixMilli() },
		"datetime":  func() string { return time.Now().Format(time.RFC3339) },

		// String utilities
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}
	return r
}

// Source returns the renderer's random source
func (r *Renderer) Source() Source {
	return r.src
}

// Render renders a template string with the given request data
func (r *Renderer) Render(templateStr string, data *RequestData) (string, error) {
	tmpl, err := template.New("response").Funcs(r.funcMap).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
