// Package transport maintains the single persistent coordinator connection
// shared by every feature of the client. Inbound envelopes fan out to all
// registered listeners; keepalive and reconnection are handled here so the
// lobby and duel layers only ever see connect/disconnect/message callbacks.
package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luckroyale/sixking/pkg/logging"
	"github.com/luckroyale/sixking/pkg/wire"
)

// Listener receives transport lifecycle events and every inbound message
// except pong, which is consumed as a liveness signal.
type Listener interface {
	OnConnect()
	OnDisconnect(err error)
	OnMessage(msgType string, data json.RawMessage)
}

type Config struct {
	URL               string
	PingInterval      time.Duration
	PongTimeout       time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	TeardownGrace     time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 2 * c.PingInterval
	}
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = 3
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.TeardownGrace == 0 {
		c.TeardownGrace = 5 * time.Second
	}
	return c
}

type pendingSend struct {
	msgType string
	payload any
}

type Channel struct {
	cfg Config

	mu         sync.Mutex
	conn       *websocket.Conn
	dialing    bool
	closed     bool
	listeners  map[string]Listener
	lastPong   time.Time
	gameId     string
	playerId   string
	pending    []pendingSend
	graceTimer *time.Timer

	// writeMu serializes writes; gorilla connections allow one writer.
	writeMu sync.Mutex
}

func NewChannel(cfg Config) *Channel {
	return &Channel{
		cfg:       cfg.withDefaults(),
		listeners: make(map[string]Listener),
	}
}

// Connect dials the coordinator. It is idempotent: a no-op while a
// connection is open or a dial is in flight.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	url := c.cfg.URL
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		logging.Warn("dial failed", zap.String("url", url), zap.Error(err))
		return err
	}
	c.conn = conn
	c.lastPong = time.Now()
	gameId, playerId := c.gameId, c.playerId
	pending := c.pending
	c.pending = nil
	listeners := c.snapshotLocked()
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.keepalive(conn)

	logging.Info("connected", zap.String("url", url))
	for _, l := range listeners {
		l.OnConnect()
	}

	// Re-bind the socket to a known room after navigation or reconnect.
	if gameId != "" {
		if err := c.write(conn, wire.TypeUpdateConnection, wire.UpdateConnection{
			GameId:   gameId,
			PlayerId: playerId,
		}); err != nil {
			logging.Warn("update_connection failed", zap.Error(err))
		}
	}
	for _, p := range pending {
		if err := c.write(conn, p.msgType, p.payload); err != nil {
			logging.Warn("critical intent retry failed",
				zap.String("type", p.msgType),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Send writes one envelope, failing synchronously when disconnected.
// Nothing is queued; callers decide how to handle failure.
func (c *Channel) Send(msgType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, msgType, payload)
}

// SendCritical behaves like Send, but a failed intent is retried once after
// the next successful reconnect. Only roll/join/start style intents should
// use this.
func (c *Channel) SendCritical(msgType string, payload any) error {
	err := c.Send(msgType, payload)
	if err == nil {
		return nil
	}
	c.mu.Lock()
	// Keep at most one queued intent per type; a newer one supersedes.
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.msgType != msgType {
			kept = append(kept, p)
		}
	}
	c.pending = append(kept, pendingSend{msgType: msgType, payload: payload})
	c.mu.Unlock()
	go c.Connect()
	return err
}

// Register adds a listener. The first listener cancels any pending teardown.
func (c *Channel) Register(name string, l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[name] = l
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}

// Unregister removes a listener. When the last one leaves, the socket is
// torn down after a short grace period so a navigation handoff between two
// screens does not churn the connection.
func (c *Channel) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, name)
	if len(c.listeners) > 0 || c.graceTimer != nil {
		return
	}
	c.graceTimer = time.AfterFunc(c.cfg.TeardownGrace, func() {
		c.mu.Lock()
		c.graceTimer = nil
		if len(c.listeners) > 0 {
			c.mu.Unlock()
			return
		}
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
			logging.Info("channel torn down, no listeners remain")
		}
	})
}

// BindSession records the room this device belongs to, re-announced via
// update_connection after every reconnect.
func (c *Channel) BindSession(gameId, playerId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameId, c.playerId = gameId, playerId
}

func (c *Channel) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameId, c.playerId = "", ""
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Channel) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Close shuts the channel down for good; no reconnects follow.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Channel) write(conn *websocket.Conn, msgType string, payload any) error {
	raw, err := wire.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logging.Warn("malformed envelope", zap.Error(err))
			continue
		}
		if env.Type == wire.TypePong {
			c.mu.Lock()
			c.lastPong = time.Now()
			c.mu.Unlock()
			continue
		}
		for _, l := range c.snapshot() {
			l.OnMessage(env.Type, env.Data)
		}
	}
}

func (c *Channel) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}
		stale := time.Since(c.lastPong) > c.cfg.PongTimeout
		c.mu.Unlock()
		if stale {
			logging.Warn("keepalive lost, forcing close", zap.String("url", c.cfg.URL))
			conn.Close()
			return
		}
		if err := c.write(conn, wire.TypePing, wire.Ping{
			Timestamp: time.Now().UnixMilli(),
		}); err != nil {
			return
		}
	}
}

func (c *Channel) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection superseded this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closed := c.closed
	listeners := c.snapshotLocked()
	c.mu.Unlock()

	logging.Info("disconnected", zap.Error(err))
	for _, l := range listeners {
		l.OnDisconnect(err)
	}
	if !closed && len(listeners) > 0 {
		go c.reconnect()
	}
}

func (c *Channel) reconnect() {
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(c.cfg.ReconnectDelay)
		c.mu.Lock()
		abandoned := c.closed || len(c.listeners) == 0 || c.conn != nil
		c.mu.Unlock()
		if abandoned {
			return
		}
		logging.Info("reconnecting", zap.Int("attempt", attempt))
		if err := c.Connect(); err == nil {
			return
		}
	}
	logging.Error("reconnect attempts exhausted", zap.String("url", c.cfg.URL))
}

func (c *Channel) snapshot() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Channel) snapshotLocked() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}
