// Package integration wires configuration, persistence and the mock engine together
// behind the handful of calls an application makes at startup and from debug tooling.
package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/comfortablynumb/quizmock/internal/clock"
	"github.com/comfortablynumb/quizmock/internal/config"
	"github.com/comfortablynumb/quizmock/internal/engine"
	"github.com/comfortablynumb/quizmock/internal/loader"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/realtime"
	"github.com/comfortablynumb/quizmock/internal/store"
	"github.com/comfortablynumb/quizmock/internal/tracker"
	"go.uber.org/zap"
)

// PersistInterval is how often the request log is flushed to the store
const PersistInterval = 10 * time.Second

// Status summarizes the integration for debug tooling
type Status struct {
	Enabled      bool   `json:"enabled"`
	Mode         string `json:"mode"`
	Initialized  bool   `json:"initialized"`
	Started      bool   `json:"started"`
	Realtime     bool   `json:"realtime"`
	RequestCount int    `json:"requestCount"`
}

type Option func(*Integration)

// WithManifest replaces the built-in manifest
func WithManifest(m *models.Manifest) Option {
	return func(i *Integration) { i.manifest = m }
}

func WithLogger(l *observability.Logger) Option {
	return func(i *Integration) { i.log = l }
}

// WithFallback sets the transport for requests the mocks do not answer
func WithFallback(rt http.RoundTripper) Option {
	return func(i *Integration) { i.fallback = rt }
}

// WithRealTransport sets the transport used for realtime dials while mocking is off
func WithRealTransport(t realtime.Transport) Option {
	return func(i *Integration) { i.realTransport = t }
}

// WithChannelOptions configures every mock realtime channel
func WithChannelOptions(opts ...realtime.Option) Option {
	return func(i *Integration) { i.channelOpts = append(i.channelOpts, opts...) }
}

// WithEngineOptions is applied after the integration's own engine options
func WithEngineOptions(opts ...engine.Option) Option {
	return func(i *Integration) { i.engineOpts = append(i.engineOpts, opts...) }
}

// WithClock drives the persist loop
func WithClock(clk clock.Clock) Option {
	return func(i *Integration) { i.clock = clk }
}

// Integration owns the engine for one process. A nil store disables persistence.
type Integration struct {
	envConfig     config.Config
	store         store.Store
	manifest      *models.Manifest
	log           *observability.Logger
	fallback      http.RoundTripper
	realTransport realtime.Transport
	channelOpts   []realtime.Option
	engineOpts    []engine.Option
	clock         clock.Clock
	realtime      *realtime.Switch

	mu          sync.Mutex
	cfg         config.Config
	engine      *engine.Engine
	initialized bool
	persistGen  int
	persistTmr  clock.Timer
	persistedID int64
}

// New prepares an integration. Nothing is started until Initialize.
func New(cfg config.Config, st store.Store, opts ...Option) (*Integration, error) {
	i := &Integration{
		envConfig: cfg,
		cfg:       cfg,
		store:     st,
		fallback:  http.DefaultTransport,
		clock:     clock.Real(),
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.manifest == nil {
		m, err := loader.Default()
		if err != nil {
			return nil, err
		}
		i.manifest = m
	}

	if i.log == nil {
		i.log = observability.Nop()
	}
	i.log.SetDebug(cfg.DebugLogging)
	if i.realTransport == nil {
		i.realTransport = &realtime.WSTransport{Log: i.log}
	}

	channelOpts := append([]realtime.Option{
		realtime.WithScenario(realtime.ResolveScenario(cfg.Scenario)),
		realtime.WithLogger(i.log),
	}, i.channelOpts...)
	i.realtime = realtime.NewSwitch(realtime.NewMockTransport(channelOpts...), i.realTransport)

	return i, nil
}

func (i *Integration) logger() *zap.Logger {
	return i.log.L().Named("integration")
}

// Initialize applies saved configuration and starts the engine when configured to.
// Calling it twice only logs a warning.
func (i *Integration) Initialize(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.initialized {
		i.logger().Warn("Already initialized")
		return nil
	}

	i.loadSavedConfig(ctx)
	i.log.SetDebug(i.cfg.DebugLogging)

	if i.cfg.Enabled {
		if err := i.ensureEngine(); err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		if i.cfg.AutoStart {
			i.engine.Start()
			i.logger().Info("Mock engine started", zap.String("mode", i.cfg.Mode))
		}
		if i.cfg.PersistRequestLog {
			i.startPersistLoop()
		}
	} else {
		i.logger().Info("Mocking disabled")
	}

	i.initialized = true
	return nil
}

func (i *Integration) loadSavedConfig(ctx context.Context) {
	if i.store == nil {
		return
	}

	data, err := i.store.Get(ctx, store.KeyConfig)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		i.logger().Warn("Could not load saved config", zap.Error(err))
		return
	}

	cfg := i.cfg
	if err := cfg.Merge(data); err != nil {
		i.logger().Warn("Could not load saved config", zap.Error(err))
		return
	}
	i.cfg = cfg
	i.logger().Info("Loaded saved config",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("mode", cfg.Mode),
		zap.Bool("debug", cfg.DebugLogging))
}

func (i *Integration) saveConfig(ctx context.Context) {
	if i.store == nil {
		return
	}

	data, err := i.cfg.Marshal()
	if err == nil {
		err = i.store.Set(ctx, store.KeyConfig, data)
	}
	if err != nil {
		i.logger().Error("Could not save config", zap.Error(err))
		return
	}
	i.logger().Debug("Config saved")
}

// ensureEngine must be called with i.mu held
func (i *Integration) ensureEngine() error {
	if i.engine != nil {
		return nil
	}

	opts := append([]engine.Option{
		engine.WithMode(i.cfg.Mode),
		engine.WithFallback(i.fallback),
		engine.WithRealtime(i.realtime),
		engine.WithLogger(i.log),
	}, i.engineOpts...)

	e, err := engine.New(i.manifest, opts...)
	if err != nil {
		return err
	}
	i.engine = e
	i.persistedID = 0
	return nil
}

func (i *Integration) checkMode(mode string) error {
	if _, ok := i.manifest.Modes[mode]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnknownMode, mode)
	}
	return nil
}

// Enable turns mocking on, optionally switching mode first
func (i *Integration) Enable(ctx context.Context, mode string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if mode != "" {
		if err := i.checkMode(mode); err != nil {
			return err
		}
		i.cfg.Mode = mode
	}
	i.cfg.Enabled = true
	i.saveConfig(ctx)

	if i.engine == nil {
		if err := i.ensureEngine(); err != nil {
			return err
		}
	} else if err := i.engine.SetMode(i.cfg.Mode); err != nil {
		return err
	}

	i.engine.Start()
	if i.cfg.PersistRequestLog && i.persistTmr == nil {
		i.startPersistLoop()
	}
	i.logger().Info("Mocking enabled", zap.String("mode", i.cfg.Mode))
	return nil
}

// Disable stops interception. The engine is kept so its log stays readable.
func (i *Integration) Disable(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.cfg.Enabled = false
	i.saveConfig(ctx)

	if i.engine != nil {
		i.engine.Stop()
	}
	i.logger().Info("Mocking disabled")
	return nil
}

// SwitchMode changes the mode for subsequent requests
func (i *Integration) SwitchMode(ctx context.Context, mode string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.checkMode(mode); err != nil {
		return err
	}
	i.cfg.Mode = mode
	i.saveConfig(ctx)

	if i.engine != nil {
		if err := i.engine.SetMode(mode); err != nil {
			return err
		}
		i.logger().Info("Switched mode", zap.String("mode", mode))
	}
	return nil
}

// Reload swaps in a new manifest. A running engine is rebuilt in the same mode and
// keeps its started state; the old request log is flushed to the store first.
// The manifest is rejected when it no longer defines the active mode.
func (i *Integration) Reload(ctx context.Context, manifest *models.Manifest) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := manifest.Modes[i.cfg.Mode]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnknownMode, i.cfg.Mode)
	}

	old := i.engine
	previous := i.manifest
	i.manifest = manifest
	if old == nil {
		i.logger().Info("Manifest reloaded")
		return nil
	}

	if i.cfg.PersistRequestLog {
		i.persist(ctx)
	}
	started := old.Started()
	old.Stop()

	i.engine = nil
	if err := i.ensureEngine(); err != nil {
		i.manifest = previous
		i.engine = old
		if started {
			old.Start()
		}
		return err
	}
	if started {
		i.engine.Start()
	}
	i.logger().Info("Manifest reloaded",
		zap.Int("services", len(manifest.Services)),
		zap.Bool("started", started))
	return nil
}

func (i *Integration) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()

	s := Status{
		Enabled:     i.cfg.Enabled,
		Mode:        i.cfg.Mode,
		Initialized: i.initialized,
		Realtime:    i.realtime.Enabled(),
	}
	if i.engine != nil {
		s.Started = i.engine.Started()
		s.RequestCount = i.engine.Tracker().Count()
	}
	return s
}

// RequestLog returns persisted entries followed by the ones not yet persisted
func (i *Integration) RequestLog(ctx context.Context) ([]tracker.Entry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.engine == nil {
		return []tracker.Entry{}, nil
	}

	if !i.cfg.PersistRequestLog || i.store == nil {
		return i.engine.RequestLog(), nil
	}

	persisted, err := i.store.Requests(ctx)
	if err != nil {
		i.logger().Error("Failed to load request log", zap.Error(err))
		return i.engine.RequestLog(), nil
	}
	return append(persisted, i.engine.Tracker().Since(i.persistedID)...), nil
}

func (i *Integration) ClearRequestLog(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.engine != nil {
		i.engine.ClearRequestLog()
	}

	if i.cfg.PersistRequestLog && i.store != nil {
		if err := i.store.ClearRequests(ctx); err != nil {
			i.logger().Error("Failed to clear request log", zap.Error(err))
			return err
		}
	}
	return nil
}

// ToggleDebugLogging sets debug logging, or flips it when enabled is nil
func (i *Integration) ToggleDebugLogging(ctx context.Context, enabled *bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if enabled != nil {
		i.cfg.DebugLogging = *enabled
	} else {
		i.cfg.DebugLogging = !i.cfg.DebugLogging
	}
	i.saveConfig(ctx)
	i.log.SetDebug(i.cfg.DebugLogging)

	state := "disabled"
	if i.cfg.DebugLogging {
		state = "enabled"
	}
	i.logger().Info("Debug logging " + state)
}

// Config returns a copy of the active configuration
func (i *Integration) Config() config.Config {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cfg
}

// Engine returns the engine, or nil before mocking was first enabled
func (i *Integration) Engine() *engine.Engine {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.engine
}

// Reset drops saved state, stops the engine and returns to the environment configuration.
// Initialize may be called again afterwards.
func (i *Integration) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.cfg = i.envConfig
	i.log.SetDebug(i.cfg.DebugLogging)
	i.stopPersistLoop()

	if i.store != nil {
		if err := i.store.Delete(ctx, store.KeyConfig); err != nil {
			return err
		}
		if err := i.store.ClearRequests(ctx); err != nil {
			return err
		}
	}

	if i.engine != nil {
		i.engine.Stop()
		i.engine = nil
	}

	i.initialized = false
	i.logger().Info("Reset to default configuration")
	return nil
}

// HTTPClient returns a client whose requests go through the mocks while they are active
func (i *Integration) HTTPClient() *http.Client {
	return &http.Client{Transport: i}
}

// RoundTrip routes through the engine, or straight to the fallback when there is none
func (i *Integration) RoundTrip(req *http.Request) (*http.Response, error) {
	i.mu.Lock()
	e := i.engine
	i.mu.Unlock()

	if e == nil {
		return i.fallback.RoundTrip(req)
	}
	return e.RoundTrip(req)
}

// Dial opens a realtime connection, simulated while the active mode intercepts realtime traffic
func (i *Integration) Dial(ctx context.Context, url string, listeners ...realtime.Listener) (realtime.Conn, error) {
	return i.realtime.Dial(ctx, url, listeners...)
}

// Close flushes the request log and stops the engine. The store is left open.
func (i *Integration) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stopPersistLoop()
	if i.cfg.PersistRequestLog {
		i.persist(context.Background())
	}
	if i.engine != nil {
		i.engine.Stop()
	}
	i.log.Sync()
	return nil
}

// startPersistLoop must be called with i.mu held
func (i *Integration) startPersistLoop() {
	if i.store == nil {
		return
	}
	i.stopPersistLoop()
	i.schedulePersist(i.persistGen)
}

func (i *Integration) stopPersistLoop() {
	i.persistGen++
	if i.persistTmr != nil {
		i.persistTmr.Stop()
		i.persistTmr = nil
	}
}

func (i *Integration) schedulePersist(gen int) {
	i.persistTmr = i.clock.AfterFunc(PersistInterval, func() {
		i.mu.Lock()
		defer i.mu.Unlock()

		if gen != i.persistGen {
			return
		}
		i.persist(context.Background())
		i.schedulePersist(gen)
	})
}

// persist must be called with i.mu held
func (i *Integration) persist(ctx context.Context) {
	if i.store == nil || i.engine == nil {
		return
	}

	entries := i.engine.Tracker().Since(i.persistedID)
	if len(entries) == 0 {
		return
	}

	if err := i.store.AppendRequests(ctx, entries); err != nil {
		i.logger().Error("Failed to persist request log", zap.Error(err))
		return
	}
	i.persistedID = entries[len(entries)-1].ID
	i.logger().Debug("Persisted request log", zap.Int("entries", len(entries)))
}
