// Package proxy forwards requests the mocks do not answer to a real backend.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/comfortablynumb/quizmock/internal/observability"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Config holds proxy configuration. An empty Target means there is no real backend.
type Config struct {
	Target       string
	PreserveHost bool
	Timeout      time.Duration
}

// Transport is an http.RoundTripper that rewrites requests onto the target backend
type Transport struct {
	config     Config
	httpClient *http.Client
	targetURL  *url.URL
	log        *observability.Logger
}

// NewTransport creates the transport for config
func NewTransport(config Config, log *observability.Logger) (*Transport, error) {
	if log == nil {
		log = observability.Nop()
	}
	t := &Transport{config: config, log: log.Named("proxy")}

	if config.Target == "" {
		return t, nil
	}

	targetURL, err := url.Parse(config.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target URL: %w", err)
	}
	if targetURL.Scheme == "" || targetURL.Host == "" {
		return nil, fmt.Errorf("invalid proxy target URL: %q needs a scheme and host", config.Target)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	t.targetURL = targetURL
	t.httpClient = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects go back to the caller
			return http.ErrUseLastResponse
		},
	}
	return t, nil
}

// RoundTrip forwards r to the target, or answers 404 when no target is configured
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.targetURL == nil {
		t.log.L().Debug("No backend for request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		return notFound(r), nil
	}

	targetURL := *t.targetURL
	targetURL.Path = singleJoiningSlash(t.targetURL.Path, r.URL.Path)
	targetURL.RawQuery = r.URL.RawQuery

	proxyReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy request: %w", err)
	}
	proxyReq.ContentLength = r.ContentLength

	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}

	host := requestHost(r)
	if t.config.PreserveHost {
		proxyReq.Host = host
	} else {
		proxyReq.Host = t.targetURL.Host
	}

	if clientIP := getClientIP(r); clientIP != "" {
		proxyReq.Header.Set("X-Forwarded-For", clientIP)
	}
	proxyReq.Header.Set("X-Forwarded-Proto", getScheme(r))
	proxyReq.Header.Set("X-Forwarded-Host", host)

	t.log.L().Debug("Proxying", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("target", targetURL.String()))

	resp, err := t.httpClient.Do(proxyReq)
	if err != nil {
		return nil, fmt.Errorf("proxy request failed: %w", err)
	}

	t.log.L().Debug("Proxied response", zap.Int("status", resp.StatusCode))
	return resp, nil
}

func notFound(r *http.Request) *http.Response {
	body, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("no backend for %s %s", r.Method, r.URL.Path),
	})

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		Status:        "404 Not Found",
		StatusCode:    http.StatusNotFound,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(string(body))),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func requestHost(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return r.URL.Host
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop only
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// getScheme returns the request scheme (http or https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	if r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	return "http"
}
