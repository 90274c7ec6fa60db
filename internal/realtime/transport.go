package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is a message-oriented connection with WebSocket semantics
type Conn interface {
	Send(data []byte) error
	Close(code int, reason string) error
	ReadyState() State
	AddListener(l Listener) func()
}

// Transport opens connections. Listeners passed to Dial are registered before the
// connection can report open.
type Transport interface {
	Dial(ctx context.Context, url string, listeners ...Listener) (Conn, error)
}

// MockTransport hands out simulated channels
type MockTransport struct {
	opts []Option
}

// NewMockTransport creates a transport whose channels share opts
func NewMockTransport(opts ...Option) *MockTransport {
	return &MockTransport{opts: opts}
}

func (t *MockTransport) Dial(ctx context.Context, url string, listeners ...Listener) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.Channel(url, listeners...), nil
}

// Channel is Dial without the interface wrapping
func (t *MockTransport) Channel(url string, listeners ...Listener) *Channel {
	opts := make([]Option, 0, len(t.opts)+1)
	opts = append(opts, t.opts...)
	opts = append(opts, WithListener(listeners...))
	return NewChannel(url, opts...)
}

// WSTransport dials real WebSocket servers
type WSTransport struct {
	Dialer *websocket.Dialer
	Log    *observability.Logger
}

func (t *WSTransport) Dial(ctx context.Context, url string, listeners ...Listener) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	log := t.Log
	if log == nil {
		log = observability.Nop()
	}

	c := &wsConn{ws: ws, state: StateOpen, log: log.Named("ws")}
	c.listeners = append(c.listeners, listeners...)
	c.dispatch(func(l Listener) { l.OnOpen() })
	go c.readLoop()

	return c, nil
}

type wsConn struct {
	ws  *websocket.Conn
	log *observability.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	state     State
	listeners []Listener
}

func (c *wsConn) Send(data []byte) error {
	if c.ReadyState() != StateOpen {
		return ErrNotOpen
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()

	if code == 0 {
		code = CloseNormal
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		c.log.L().Debug("Failed to send close frame", zap.Error(err))
	}
	return nil
}

func (c *wsConn) ReadyState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *wsConn) AddListener(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, other := range c.listeners {
			if other == l {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *wsConn) dispatch(fn func(Listener)) {
	c.mu.Lock()
	ls := make([]Listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()

	for _, l := range ls {
		fn(l)
	}
}

func (c *wsConn) readLoop() {
	code, reason := websocket.CloseAbnormalClosure, ""

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code, reason = closeErr.Code, closeErr.Text
			} else if c.ReadyState() == StateClosing {
				code = CloseNormal
			} else {
				c.log.L().Warn("WebSocket read failed", zap.Error(err))
			}
			break
		}
		c.dispatch(func(l Listener) { l.OnMessage(data) })
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	if err := c.ws.Close(); err != nil {
		c.log.L().Debug("Error closing connection", zap.Error(err))
	}
	c.dispatch(func(l Listener) { l.OnClose(code, reason) })
}

// Switch routes Dial to the mock or the real transport. Enabled means mock.
type Switch struct {
	mu      sync.RWMutex
	enabled bool
	mock    Transport
	real    Transport
}

// NewSwitch creates a disabled switch
func NewSwitch(mock, real Transport) *Switch {
	return &Switch{mock: mock, real: real}
}

func (s *Switch) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
}

func (s *Switch) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
}

func (s *Switch) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *Switch) Dial(ctx context.Context, url string, listeners ...Listener) (Conn, error) {
	if s.Enabled() {
		return s.mock.Dial(ctx, url, listeners...)
	}
	if s.real == nil {
		return nil, fmt.Errorf("realtime: no real transport configured for %s", url)
	}
	return s.real.Dial(ctx, url, listeners...)
}
