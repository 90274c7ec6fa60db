// Package server hosts the mock backend over real HTTP and WebSocket listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/comfortablynumb/quizmock/internal/engine"
	"github.com/comfortablynumb/quizmock/internal/integration"
	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/realtime"
	"github.com/comfortablynumb/quizmock/internal/recorder"
	"github.com/comfortablynumb/quizmock/internal/sse"
	"github.com/comfortablynumb/quizmock/internal/tracker"
	"github.com/comfortablynumb/quizmock/internal/ui"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ControlPrefix is where the debug control API lives
const ControlPrefix = "/__mock"

// Options configures the server
type Options struct {
	Port int
	// Channel options for every /ws connection
	ChannelOptions []realtime.Option
	Log            *observability.Logger
	// Recorder exposes /__mock/recording when set
	Recorder *recorder.Recorder
}

// Server serves mocked HTTP routes, mock realtime channels and the control API
type Server struct {
	port     int
	integ    *integration.Integration
	chanOpts []realtime.Option
	recorder *recorder.Recorder
	health   *observability.Health
	log      *observability.Logger
	mock     http.Handler
	router   chi.Router
	http     *http.Server
}

// New builds the router around an initialized integration
func New(integ *integration.Integration, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = observability.Nop()
	}

	channelOpts := append([]realtime.Option{
		realtime.WithScenario(realtime.ResolveScenario(integ.Config().Scenario)),
		realtime.WithLogger(log),
	}, opts.ChannelOptions...)

	s := &Server{
		port:     opts.Port,
		integ:    integ,
		chanOpts: channelOpts,
		recorder: opts.Recorder,
		health:   observability.NewHealth(),
		log:      log.Named("server"),
	}
	s.mock = engine.Handler(integ, s.log)
	s.health.Register("engine", s.engineHealth)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(observability.MetricsMiddleware)
	r.Use(observability.TracingMiddleware)

	r.Get("/healthz", s.health.Handler())
	r.Handle("/metrics", observability.MetricsHandler())
	r.Get("/ws", s.handleWebSocket)

	r.Route(ControlPrefix, func(r chi.Router) {
		if panel, err := ui.Handler(ControlPrefix, s.log); err != nil {
			s.log.L().Error("Debug panel unavailable", zap.Error(err))
		} else {
			r.Method(http.MethodGet, "/ui", panel)
		}

		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleConfig)
		r.Post("/enable", s.handleEnable)
		r.Post("/disable", s.handleDisable)
		r.Post("/reset", s.handleReset)
		r.Put("/debug", s.handleDebug)

		r.Get("/mode", s.handleGetMode)
		r.Put("/mode", s.handleSetMode)

		r.Get("/requests", s.handleRequests)
		r.Method(http.MethodGet, "/requests/stream", sse.NewRequestStream(s.currentTracker, 0, 0, s.log))
		r.Delete("/requests", s.handleClearRequests)

		r.Get("/session/{key}", s.handleGetSession)
		r.Put("/session/{key}", s.handleSetSession)
		r.Delete("/session", s.handleClearSession)

		if s.recorder != nil {
			r.Get("/recording", s.handleRecording)
			r.Post("/recording/start", s.handleRecordingStart)
			r.Post("/recording/stop", s.handleRecordingStop)
			r.Delete("/recording", s.handleRecordingClear)
			r.Get("/recording/manifest", s.handleRecordingManifest)
		}
	})

	r.NotFound(s.handleMock)
	r.MethodNotAllowed(s.handleMock)
	return r
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.L().Info("Mock server listening", zap.String("addr", "http://localhost"+s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// handleMock answers everything outside the reserved routes through the integration,
// which falls back to the real backend while mocking is off
func (s *Server) handleMock(w http.ResponseWriter, r *http.Request) {
	s.mock.ServeHTTP(w, r)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.L().Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	opts := append([]realtime.Option{}, s.chanOpts...)
	if name := r.URL.Query().Get("scenario"); name != "" {
		opts = append(opts, realtime.WithScenario(realtime.ResolveScenario(name)))
	}
	ch := realtime.NewChannel("ws://"+r.Host+r.URL.RequestURI(), opts...)

	s.log.L().Info("Realtime client connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("player", ch.PlayerID()),
		zap.String("scenario", string(ch.Scenario())))
	realtime.ServeChannel(conn, ch)
	s.log.L().Info("Realtime client disconnected", zap.String("player", ch.PlayerID()))
}

// currentTracker follows engine rebuilds after a reset or manifest reload
func (s *Server) currentTracker() *tracker.Tracker {
	if e := s.integ.Engine(); e != nil {
		return e.Tracker()
	}
	return nil
}

func (s *Server) engineHealth() observability.HealthCheck {
	status := s.integ.Status()
	check := observability.HealthCheck{Name: "engine", Status: observability.HealthStatusHealthy}
	switch {
	case !status.Initialized:
		check.Status = observability.HealthStatusUnhealthy
		check.Message = "not initialized"
	case !status.Started:
		check.Status = observability.HealthStatusDegraded
		check.Message = "interception stopped"
	default:
		check.Message = "mode " + status.Mode
	}
	return check
}
