// Package notify maintains the push channel from the backend: a websocket
// delivering JSON event envelopes to the daemon. Handlers are dispatched
// by event name; events nobody listens for are dropped. The channel
// redials with a fixed delay after every unexpected close and never blocks
// extraction or approval work.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventTaskDetected carries a PendingApprovalBatch-shaped payload.
const EventTaskDetected = "TASK_DETECTED"

const (
	defaultReconnectDelay   = 3 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrAlreadyStarted is returned when Start is called on a running channel.
var ErrAlreadyStarted = errors.New("notify: channel already started")

// Envelope is the wire format of one push event.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

// Config configures the push channel.
type Config struct {
	URL       string
	AuthToken string

	// ReconnectDelay is the fixed wait between redials (default 3s).
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	return c
}

// Channel is a reconnecting websocket subscription to backend push
// events.
type Channel struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	handlers map[string]map[string]Handler
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	running  bool
}

// NewChannel creates a stopped channel.
func NewChannel(cfg Config, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		cfg:      cfg.withDefaults(),
		log:      logger,
		handlers: make(map[string]map[string]Handler),
	}
}

// On registers a handler for an event name. The returned func
// unsubscribes it. Registration is allowed before or after Start.
func (c *Channel) On(event string, fn Handler) func() {
	id := uuid.New().String()
	c.mu.Lock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[string]Handler)
	}
	c.handlers[event][id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

// Start begins the connect/read/reconnect loop on its own goroutine.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(ctx, c.done)

	c.log.Info("push channel starting", zap.String("url", c.cfg.URL))
	return nil
}

// Stop ends the loop and closes any open connection. Safe to call twice.
func (c *Channel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	c.log.Info("push channel stopped")
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("push channel dial failed", zap.Error(err))
			}
		} else {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()

			c.log.Info("push channel connected")
			c.readLoop(ctx, conn)

			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bad push channel url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial push channel: %w", err)
	}
	return conn, nil
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("push channel closed", zap.Error(err))
			} else {
				c.log.Warn("push channel read error", zap.Error(err))
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch runs on the read goroutine; handlers must be fast.
func (c *Channel) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug("discarding unparseable push event", zap.Error(err))
		return
	}

	c.mu.Lock()
	fns := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, fn := range c.handlers[env.Event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if len(fns) == 0 {
		c.log.Debug("ignoring push event", zap.String("event", env.Event))
		return
	}
	for _, fn := range fns {
		fn(env.Payload)
	}
}
