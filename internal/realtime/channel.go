// Package realtime simulates a multiplayer quiz server behind a WebSocket-shaped connection.
//
// A Channel owns one goroutine. Commands from Send and timer firings are posted to an
// unbounded mailbox and run in order on that goroutine, so lobby and game state need no locks.
// Listeners are invoked from the same goroutine.
package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/comfortablynumb/quizmock/internal/clock"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotOpen is returned by Send when the connection is not OPEN
var ErrNotOpen = errors.New("realtime: connection is not open")

// State is the connection ready state
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

const (
	// CloseNormal is used when Close is called without a specific code
	CloseNormal = 1000
	// CloseGoingAway is the code of the simulated network drop
	CloseGoingAway = 1001

	minOpenDelay  = 100 * time.Millisecond
	openDelaySpan = 500 * time.Millisecond
	closeDelay    = 100 * time.Millisecond
)

// Listener receives connection notifications
type Listener interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(code int, reason string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Open    func()
	Message func(data []byte)
	Close   func(code int, reason string)
}

func (f ListenerFuncs) OnOpen() {
	if f.Open != nil {
		f.Open()
	}
}

func (f ListenerFuncs) OnMessage(data []byte) {
	if f.Message != nil {
		f.Message(data)
	}
}

func (f ListenerFuncs) OnClose(code int, reason string) {
	if f.Close != nil {
		f.Close(code, reason)
	}
}

// Option configures a Channel
type Option func(*Channel)

// WithScenario selects the scenario instead of the environment default
func WithScenario(s Scenario) Option {
	return func(c *Channel) { c.scenario = s }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Channel) { c.clock = clk }
}

func WithRandom(src template.Source) Option {
	return func(c *Channel) { c.rand = src }
}

func WithLogger(l *observability.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithListener registers listeners before the connection can open
func WithListener(ls ...Listener) Option {
	return func(c *Channel) { c.listeners = append(c.listeners, ls...) }
}

// Channel is a simulated realtime connection
type Channel struct {
	url      string
	playerID string
	scenario Scenario
	timings  Timings
	clock    clock.Clock
	rand     template.Source
	log      *observability.Logger

	// Connection state, shared with callers of Send/Close/ReadyState
	stateMu   sync.Mutex
	state     State
	closeSent bool

	listenerMu sync.RWMutex
	listeners  []Listener

	// Mailbox
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}

	// Owned by the loop goroutine
	timers       map[int]clock.Timer
	periodic     map[string]int
	seq          int
	lobbies      map[string]*models.Lobby
	games        map[string]*game
	currentLobby string
	isHost       bool
	disconnected bool
	counted      bool
}

// NewChannel creates a channel in CONNECTING state. It opens after a random 100-600ms delay.
func NewChannel(url string, opts ...Option) *Channel {
	c := &Channel{
		url:      url,
		playerID: newID("player"),
		scenario: ResolveScenario(""),
		clock:    clock.Real(),
		state:    StateConnecting,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		timers:   make(map[int]clock.Timer),
		periodic: make(map[string]int),
		lobbies:  make(map[string]*models.Lobby),
		games:    make(map[string]*game),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rand == nil {
		c.rand = template.NewTimeSource()
	}
	if c.log == nil {
		c.log = observability.Nop()
	}
	c.log = c.log.Named("realtime")
	c.timings = c.scenario.Timings()

	delay := minOpenDelay + time.Duration(c.rand.Float64()*float64(openDelaySpan))

	go c.run()
	c.post(func() { c.after(delay, c.open) })

	c.log.L().Debug("Channel created",
		zap.String("url", url),
		zap.String("scenario", string(c.scenario)),
		zap.Duration("open_delay", delay))

	return c
}

// URL returns the address the channel was opened for
func (c *Channel) URL() string {
	return c.url
}

// PlayerID returns the identity the channel uses for its own commands
func (c *Channel) PlayerID() string {
	return c.playerID
}

// Scenario returns the active scenario
func (c *Channel) Scenario() Scenario {
	return c.scenario
}

// ReadyState returns the current connection state
func (c *Channel) ReadyState() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Done is closed once the channel has closed for good
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// AddListener registers l and returns a function that removes it
func (c *Channel) AddListener(l Listener) func() {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, l)

	return func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		for i, other := range c.listeners {
			if other == l {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Send hands a JSON command to the simulated server.
// Malformed JSON and unknown command types are ignored.
func (c *Channel) Send(data []byte) error {
	if c.ReadyState() != StateOpen {
		return ErrNotOpen
	}

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.L().Debug("Ignoring malformed command", zap.Error(err))
		return nil
	}

	observability.RecordRealtimeEvent("sent", env.Type)
	c.log.L().Debug("Sending", zap.String("type", env.Type), zap.ByteString("payload", env.Payload))

	c.post(func() { c.handle(env) })
	return nil
}

// Close starts the closing handshake. Every pending timer is cancelled immediately and
// the close notification follows 100ms later. Closing an already closing channel is a no-op.
// A channel sitting in a simulated drop is already closed: Close only cancels the reconnect.
func (c *Channel) Close(code int, reason string) error {
	c.stateMu.Lock()
	if c.closeSent {
		c.stateMu.Unlock()
		return nil
	}
	c.closeSent = true
	dropped := c.state == StateClosed
	if !dropped {
		c.state = StateClosing
	}
	c.stateMu.Unlock()

	if dropped {
		c.post(func() {
			c.cancelAll()
			c.stop()
		})
		return nil
	}

	if code == 0 {
		code = CloseNormal
	}

	c.post(func() { c.finishClose(code, reason) })
	return nil
}

func (c *Channel) finishClose(code int, reason string) {
	c.cancelAll()
	c.markClosed()

	c.after(closeDelay, func() {
		c.setState(StateClosed)
		c.log.L().Debug("Channel closed", zap.Int("code", code), zap.String("reason", reason))
		c.dispatch(func(l Listener) { l.OnClose(code, reason) })
		c.stop()
	})
}

func (c *Channel) open() {
	c.stateMu.Lock()
	if c.state != StateConnecting {
		c.stateMu.Unlock()
		return
	}
	c.state = StateOpen
	c.stateMu.Unlock()

	c.markOpen()
	c.startSimulation()
	if c.scenario == ScenarioDisconnectRecovery && !c.disconnected {
		c.scheduleDisconnect()
	}

	c.log.L().Debug("Channel open", zap.String("url", c.url))
	c.dispatch(func(l Listener) { l.OnOpen() })
}

func (c *Channel) setState(s State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
}

// emit sends an event to every listener. Emissions while not OPEN are dropped.
func (c *Channel) emit(eventType string, payload interface{}) {
	env := models.Envelope{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.log.L().Error("Failed to encode event", zap.String("type", eventType), zap.Error(err))
			return
		}
		env.Payload = raw
	}
	c.emitEnvelope(env)
}

func (c *Channel) emitEnvelope(env models.Envelope) {
	if c.ReadyState() != StateOpen {
		c.log.L().Debug("Dropping event, channel not open", zap.String("type", env.Type))
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		c.log.L().Error("Failed to encode event", zap.String("type", env.Type), zap.Error(err))
		return
	}

	observability.RecordRealtimeEvent("received", env.Type)
	c.log.L().Debug("Emitting", zap.String("type", env.Type))
	c.dispatch(func(l Listener) { l.OnMessage(data) })
}

func (c *Channel) dispatch(fn func(Listener)) {
	c.listenerMu.RLock()
	ls := make([]Listener, len(c.listeners))
	copy(ls, c.listeners)
	c.listenerMu.RUnlock()

	for _, l := range ls {
		fn(l)
	}
}

// post appends fn to the mailbox. It reports false once the loop has stopped.
func (c *Channel) post(fn func()) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *Channel) run() {
	defer close(c.done)

	for range c.wake {
		for {
			c.mu.Lock()
			if c.stopped {
				c.queue = nil
				c.mu.Unlock()
				return
			}
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			fn := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.mu.Unlock()

			fn()
		}
	}
}

// stop ends the loop after the current callback
func (c *Channel) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// flush waits until everything posted so far has run
func (c *Channel) flush() {
	ran := make(chan struct{})
	if !c.post(func() { close(ran) }) {
		return
	}
	select {
	case <-ran:
	case <-c.done:
	}
}

// after schedules fn on the loop and returns a handle for cancel
func (c *Channel) after(d time.Duration, fn func()) int {
	c.seq++
	id := c.seq
	c.timers[id] = c.clock.AfterFunc(d, func() {
		c.post(func() {
			if _, ok := c.timers[id]; !ok {
				return
			}
			delete(c.timers, id)
			fn()
		})
	})
	return id
}

// every runs fn each d until the named periodic task is stopped
func (c *Channel) every(name string, d time.Duration, fn func()) {
	var tick func()
	tick = func() {
		fn()
		if _, ok := c.periodic[name]; ok {
			c.periodic[name] = c.after(d, tick)
		}
	}
	c.periodic[name] = c.after(d, tick)
}

func (c *Channel) cancel(id int) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Channel) cancelAll() {
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	for name := range c.periodic {
		delete(c.periodic, name)
	}
}

// markOpen and markClosed keep the open-channel gauge balanced across reconnects
func (c *Channel) markOpen() {
	if !c.counted {
		c.counted = true
		observability.RecordChannelOpen(1)
	}
}

func (c *Channel) markClosed() {
	if c.counted {
		c.counted = false
		observability.RecordChannelOpen(-1)
	}
}

func (c *Channel) now() int64 {
	return c.clock.Now().UnixMilli()
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
