package models

import "strings"

// Manifest represents a complete mock manifest loaded from a YAML file
type Manifest struct {
	Version       string               `yaml:"version" json:"version"`
	Modes         map[string]Mode      `yaml:"modes" json:"modes"`
	Services      []Service            `yaml:"services" json:"services"`
	Generators    map[string]Generator `yaml:"generators,omitempty" json:"generators,omitempty"`
	RealtimeModes []string             `yaml:"realtime_modes" json:"realtime_modes,omitempty"` // Modes that also intercept realtime connections
}

// Service groups the endpoints of one logical backend service
type Service struct {
	Name      string     `yaml:"name" json:"name"`
	BaseURL   string     `yaml:"base_url,omitempty" json:"base_url"`
	Endpoints []Endpoint `yaml:"endpoints" json:"endpoints"`
}

// Endpoint declares one simulated HTTP route and how its response is built
type Endpoint struct {
	Path      string            `yaml:"path" json:"path"`                     // Supports :name segments and * wildcards
	Method    string            `yaml:"method" json:"method"`                 // Exact match
	Fixture   string            `yaml:"fixture,omitempty" json:"fixture"`     // Named fixture dataset
	Generator string            `yaml:"generator,omitempty" json:"generator"` // Named generator (built-in or manifest)
	Delay     int               `yaml:"delay,omitempty" json:"delay"`         // Response delay in milliseconds
	Status    int               `yaml:"status,omitempty" json:"status"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Error     *ErrorRule        `yaml:"error,omitempty" json:"error,omitempty"`
	Body      string            `yaml:"body,omitempty" json:"body,omitempty"`         // Inline JSON body
	Template  bool              `yaml:"template,omitempty" json:"template,omitempty"` // If true, body is a Go template
}

// ErrorRule injects a synthetic failure with the given probability
type ErrorRule struct {
	Rate    float64 `yaml:"rate" json:"rate"` // Probability of failure (0.0 to 1.0)
	Status  int     `yaml:"status,omitempty" json:"status"`
	Message string  `yaml:"message" json:"message"`
}

// Mode is a named bundle selecting which services are mocked
type Mode struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Enabled     []string `yaml:"enabled" json:"enabled"`
	Disabled    []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Generator is a manifest-defined response generator
type Generator struct {
	JavaScript string `yaml:"javascript" json:"javascript"`
}

// Allows reports whether the mode mocks the given service. Disabled wins over enabled.
func (m Mode) Allows(service string) bool {
	for _, s := range m.Disabled {
		if s == service {
			return false
		}
	}
	for _, s := range m.Enabled {
		if s == service {
			return true
		}
	}
	return false
}

// StatusCode returns the configured status, defaulting to 200
func (e Endpoint) StatusCode() int {
	if e.Status == 0 {
		return 200
	}
	return e.Status
}

// Key identifies the endpoint by method and path
func (e Endpoint) Key() string {
	return strings.ToUpper(e.Method) + " " + e.Path
}

// SupportsRealtime reports whether the mode should also intercept realtime connections
func (m *Manifest) SupportsRealtime(mode string) bool {
	for _, name := range m.RealtimeModes {
		if name == mode {
			return true
		}
	}
	return false
}

// ServiceNames returns the service names in manifest order
func (m *Manifest) ServiceNames() []string {
	names := make([]string, 0, len(m.Services))
	for _, s := range m.Services {
		names = append(names, s.Name)
	}
	return names
}
