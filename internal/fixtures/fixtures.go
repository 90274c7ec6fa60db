// Package fixtures builds mock response bodies from canned datasets, generators and defaults.
package fixtures

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/comfortablynumb/quizmock/internal/authtoken"
	"github.com/comfortablynumb/quizmock/internal/matcher"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/tidwall/gjson"
)

//go:embed data/*.json
var datasets embed.FS

// ErrNoFixtureMatch is returned when a fixture lookup finds no matching row
var ErrNoFixtureMatch = errors.New("no matching fixture row")

// Outcomes recorded alongside a synthesized body
const (
	OutcomeFixture        = "fixture"
	OutcomeNoFixtureMatch = "no_fixture_match"
	OutcomeGenerator      = "generator"
	OutcomeInline         = "inline"
	OutcomeDefault        = "default"
	OutcomeGeneric        = "generic"
)

// Result is a synthesized success body
type Result struct {
	Body    interface{}
	Status  int // Non-zero overrides the descriptor status
	Outcome string
}

// Synthesizer resolves response bodies by priority: fixture, generator, inline body, path default, generic
type Synthesizer struct {
	fixtures   map[string][]byte
	generators map[string]models.Generator
	renderer   *template.Renderer
	tokens     *authtoken.Issuer
	now        func() time.Time
}

// NewSynthesizer loads the embedded datasets
func NewSynthesizer(generators map[string]models.Generator, renderer *template.Renderer, tokens *authtoken.Issuer) (*Synthesizer, error) {
	s := &Synthesizer{
		fixtures:   make(map[string][]byte),
		generators: generators,
		renderer:   renderer,
		tokens:     tokens,
		now:        time.Now,
	}

	entries, err := datasets.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	for _, entry := range entries {
		data, err := datasets.ReadFile("data/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read fixture %s: %w", entry.Name(), err)
		}
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("fixture %s is not valid JSON", entry.Name())
		}
		name := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		s.fixtures[name] = data
	}

	return s, nil
}

// SetNow replaces the time source for generated IDs and timestamps
func (s *Synthesizer) SetNow(now func() time.Time) {
	s.now = now
}

// Fixture returns the raw JSON of a named dataset
func (s *Synthesizer) Fixture(name string) ([]byte, bool) {
	data, ok := s.fixtures[name]
	return data, ok
}

// HasGenerator reports whether a generator is known by name
func (s *Synthesizer) HasGenerator(name string) bool {
	if _, ok := builtinGenerators[name]; ok {
		return true
	}
	_, ok := s.generators[name]
	return ok
}

// Body synthesizes the success body for a matched route
func (s *Synthesizer) Body(route *matcher.Route, req *template.RequestData) (Result, error) {
	ep := route.Endpoint

	if ep.Fixture != "" {
		if data, ok := s.fixtures[ep.Fixture]; ok {
			body, err := s.processFixture(data, route, req)
			if errors.Is(err, ErrNoFixtureMatch) {
				return Result{
					Body:    ErrorBody("user not found"),
					Status:  http.StatusNotFound,
					Outcome: OutcomeNoFixtureMatch,
				}, nil
			}
			if err != nil {
				return Result{}, err
			}
			return Result{Body: body, Outcome: OutcomeFixture}, nil
		}
	}

	if ep.Generator != "" {
		body, err := s.generate(ep.Generator, req)
		if err != nil {
			return Result{}, fmt.Errorf("generator %s: %w", ep.Generator, err)
		}
		return Result{Body: body, Outcome: OutcomeGenerator}, nil
	}

	if ep.Body != "" {
		body, err := s.inline(ep, req)
		if err != nil {
			return Result{}, err
		}
		return Result{Body: body, Outcome: OutcomeInline}, nil
	}

	if body, ok := s.defaultBody(req); ok {
		return Result{Body: body, Outcome: OutcomeDefault}, nil
	}

	return Result{Body: map[string]interface{}{"success": true}, Outcome: OutcomeGeneric}, nil
}

func (s *Synthesizer) inline(ep models.Endpoint, req *template.RequestData) (interface{}, error) {
	body := ep.Body
	if ep.Template {
		rendered, err := s.renderer.Render(body, req)
		if err != nil {
			return nil, err
		}
		body = rendered
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body), nil
	}
	return body, nil
}

// ErrorBody is the JSON payload of an injected or synthesized error
func ErrorBody(message string) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   message,
	}
}

// requestJSON returns the request body when it is valid JSON, or an empty object.
// Malformed bodies are treated as absent.
func requestJSON(req *template.RequestData) string {
	if req == nil || !gjson.Valid(req.Body) {
		return "{}"
	}
	return req.Body
}
