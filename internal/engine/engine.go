// Package engine answers HTTP requests from the mock manifest and delegates everything else
// to a real transport.
package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/comfortablynumb/quizmock/internal/authtoken"
	"github.com/comfortablynumb/quizmock/internal/clock"
	"github.com/comfortablynumb/quizmock/internal/fixtures"
	"github.com/comfortablynumb/quizmock/internal/matcher"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/realtime"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/comfortablynumb/quizmock/internal/tracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultMode is used when no mode is given
const DefaultMode = "demo"

const (
	defaultErrorStatus  = http.StatusInternalServerError
	defaultErrorMessage = "Mock error"
)

// ErrUnknownMode is returned when a mode is not declared in the manifest
var ErrUnknownMode = errors.New("unknown mode")

// Outcomes recorded for responses the synthesizer did not produce
const (
	OutcomeInjectedError  = "injected_error"
	OutcomeSynthesisError = "synthesis_error"
)

// Passthrough reasons
const (
	ReasonStopped   = "stopped"
	ReasonUnmatched = "unmatched"
	ReasonDisabled  = "disabled"
)

// Option configures an Engine
type Option func(*Engine)

func WithMode(mode string) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithFallback sets the transport used for requests the engine does not answer
func WithFallback(rt http.RoundTripper) Option {
	return func(e *Engine) { e.fallback = rt }
}

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithRandom sets the source for error injection and generated data
func WithRandom(src template.Source) Option {
	return func(e *Engine) { e.rand = src }
}

func WithTracker(t *tracker.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithRealtime hands the engine the switch it toggles on Start and Stop
func WithRealtime(sw *realtime.Switch) Option {
	return func(e *Engine) { e.realtime = sw }
}

func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTokens sets the issuer used by the auth fixtures
func WithTokens(issuer *authtoken.Issuer) Option {
	return func(e *Engine) { e.tokens = issuer }
}

// Engine is an http.RoundTripper that mocks the endpoints declared in a manifest
type Engine struct {
	manifest *models.Manifest
	matcher  *matcher.Matcher
	synth    *fixtures.Synthesizer
	fallback http.RoundTripper
	clock    clock.Clock
	rand     template.Source
	tracker  *tracker.Tracker
	realtime *realtime.Switch
	tokens   *authtoken.Issuer
	log      *observability.Logger

	mu      sync.RWMutex
	started bool
	mode    string

	sessionMu sync.RWMutex
	session   map[string]interface{}
}

// New builds an engine for the manifest. The engine starts stopped.
func New(manifest *models.Manifest, opts ...Option) (*Engine, error) {
	e := &Engine{
		manifest: manifest,
		mode:     DefaultMode,
		fallback: http.DefaultTransport,
		clock:    clock.Real(),
		session:  make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, ok := manifest.Modes[e.mode]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, e.mode)
	}
	if e.rand == nil {
		e.rand = template.NewTimeSource()
	}
	if e.tracker == nil {
		e.tracker = tracker.NewTracker(0)
	}
	if e.tokens == nil {
		e.tokens = authtoken.NewIssuer("")
		e.tokens.SetNow(e.clock.Now)
	}
	if e.log == nil {
		e.log = observability.Nop()
	}
	e.log = e.log.Named("engine")
	e.tracker.SetNow(e.clock.Now)

	m, err := matcher.NewMatcher(manifest)
	if err != nil {
		return nil, err
	}
	e.matcher = m

	synth, err := fixtures.NewSynthesizer(manifest.Generators, template.NewRenderer(e.rand), e.tokens)
	if err != nil {
		return nil, err
	}
	synth.SetNow(e.clock.Now)
	e.synth = synth

	return e, nil
}

// Start turns interception on. It also routes realtime dials to the mock when the mode supports it.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	e.started = true
	e.syncRealtime()

	e.log.L().Info("Mock engine started",
		zap.String("mode", e.mode),
		zap.Int("endpoints", e.matcher.Len()),
		zap.Bool("realtime", e.realtime != nil && e.realtime.Enabled()))
}

// Stop turns interception and realtime mocking off
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}
	e.started = false
	if e.realtime != nil {
		e.realtime.Disable()
	}

	e.log.L().Info("Mock engine stopped")
}

// Started reports whether interception is on
func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// SetMode switches the active mode for subsequent requests
func (e *Engine) SetMode(name string) error {
	if _, ok := e.manifest.Modes[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMode, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.log.L().Info("Switching mode", zap.String("from", e.mode), zap.String("to", name))
	e.mode = name
	if e.started {
		e.syncRealtime()
	}
	return nil
}

// Mode returns the active mode name
func (e *Engine) Mode() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// Manifest returns the manifest the engine serves
func (e *Engine) Manifest() *models.Manifest {
	return e.manifest
}

// Modes returns the declared mode names, sorted
func (e *Engine) Modes() []string {
	names := make([]string, 0, len(e.manifest.Modes))
	for name := range e.manifest.Modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledServices returns the services mocked under the active mode, in manifest order
func (e *Engine) EnabledServices() []string {
	mode := e.manifest.Modes[e.Mode()]
	var out []string
	for _, name := range e.manifest.ServiceNames() {
		if mode.Allows(name) {
			out = append(out, name)
		}
	}
	return out
}

// syncRealtime must be called with e.mu held
func (e *Engine) syncRealtime() {
	if e.realtime == nil {
		return
	}
	if e.manifest.SupportsRealtime(e.mode) {
		e.realtime.Enable()
	} else {
		e.realtime.Disable()
	}
}

// RoundTrip answers matched requests for enabled services and delegates the rest
func (e *Engine) RoundTrip(req *http.Request) (*http.Response, error) {
	e.mu.RLock()
	started, modeName := e.started, e.mode
	e.mu.RUnlock()

	if !started {
		return e.passthrough(req, ReasonStopped)
	}

	route := e.matcher.FindMatch(req.Method, req.URL.Path)
	if route == nil {
		return e.passthrough(req, ReasonUnmatched)
	}

	if mode := e.manifest.Modes[modeName]; !mode.Allows(route.Service) {
		return e.passthrough(req, ReasonDisabled)
	}

	if req.Body != nil {
		defer req.Body.Close()
	}

	ep := route.Endpoint
	ctx, span := observability.StartSpan(req.Context(), "mock "+ep.Key())
	defer span.End()
	span.SetAttributes(
		attribute.String("mock.service", route.Service),
		attribute.String("mock.mode", modeName),
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.URL.Path),
	)

	if ep.Delay > 0 {
		if err := clock.Sleep(ctx, e.clock, time.Duration(ep.Delay)*time.Millisecond); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if rule := ep.Error; rule != nil && e.rand.Float64() < rule.Rate {
		status, message := rule.Status, rule.Message
		if status == 0 {
			status = defaultErrorStatus
		}
		if message == "" {
			message = defaultErrorMessage
		}

		observability.RecordInjectedError(route.Service, status)
		observability.AddSpanEvent(ctx, "error_injected", attribute.Int("status", status))
		return e.respond(req, route, status, fixtures.ErrorBody(message), OutcomeInjectedError)
	}

	data := template.NewRequestData(req.WithContext(ctx), route.Params)
	result, err := e.synth.Body(route, data)
	if err != nil {
		e.log.L().Error("Failed to build mock response",
			zap.String("endpoint", ep.Key()),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return e.respond(req, route, http.StatusInternalServerError, fixtures.ErrorBody(err.Error()), OutcomeSynthesisError)
	}

	status := ep.StatusCode()
	if result.Status != 0 {
		status = result.Status
	}
	return e.respond(req, route, status, result.Body, result.Outcome)
}

func (e *Engine) passthrough(req *http.Request, reason string) (*http.Response, error) {
	observability.RecordPassthrough(reason)
	e.log.L().Debug("Passing through",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("reason", reason))
	return e.fallback.RoundTrip(req)
}

func (e *Engine) respond(req *http.Request, route *matcher.Route, status int, body interface{}, outcome string) (*http.Response, error) {
	var payload []byte
	if status != http.StatusNoContent {
		var err error
		payload, err = encodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode mock body: %w", err)
		}
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	for key, value := range route.Endpoint.Headers {
		header.Set(key, value)
	}

	e.tracker.Log(tracker.Entry{
		Method:  req.Method,
		URL:     req.URL.String(),
		Mocked:  true,
		Service: route.Service,
		Status:  status,
		Outcome: outcome,
	})
	observability.RecordIntercepted(route.Service, outcome)

	e.log.L().Info("Intercepted",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("service", route.Service),
		zap.Int("status", status),
		zap.String("outcome", outcome))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}
