// Package transport implements the persistent event channel between a
// client and the relay: one WebSocket carrying JSON envelopes keyed by
// a type field, with automatic reconnect and handler registration that
// survives reconnects.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/pkg/log"
)

// Handler receives the raw JSON of one message for its event name.
type Handler func(data []byte)

// Options configures a Channel.
type Options struct {
	// ReconnectMin/Max bound the exponential backoff between redials.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	DialTimeout  time.Duration
	// WriteWait is the per-message write deadline.
	WriteWait time.Duration
}

func (o *Options) withDefaults() {
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
}

// Channel is a reconnecting WebSocket connection to the relay.
// Delivery is at-most-once; ordering holds per event name per sender.
type Channel struct {
	url  string
	opts Options

	mu       sync.RWMutex
	handlers map[string]Handler

	onConnect    []func()
	onDisconnect []func()

	connected atomic.Bool
	connID    atomic.Value // string assigned by the relay hello

	sendCh   chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a channel for the given relay WebSocket URL.
func New(wsURL string, opts Options) *Channel {
	opts.withDefaults()
	return &Channel{
		url:      wsURL,
		opts:     opts,
		handlers: make(map[string]Handler),
		sendCh:   make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// On registers the handler for an event name, replacing any previous
// registration. Registrations persist across reconnects.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// Off removes the handler for an event name.
func (c *Channel) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

// OnConnect registers a hook fired after every successful (re)connect.
func (c *Channel) OnConnect(f func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, f)
	c.mu.Unlock()
}

// OnDisconnect registers a hook fired on every connection drop.
func (c *Channel) OnDisconnect(f func()) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, f)
	c.mu.Unlock()
}

// Connected reports whether the channel currently has a live socket.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// ConnID returns the connection id assigned by the relay, empty before
// the first hello.
func (c *Channel) ConnID() string {
	if v := c.connID.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Connect dials the relay. The initial dial is synchronous so callers
// learn about an unreachable relay immediately; afterwards drops are
// recovered in the background with backoff.
func (c *Channel) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	// Emit is usable as soon as Connect returns.
	c.connected.Store(true)
	go c.supervise(conn)
	return nil
}

// Emit sends one message. The payload must marshal to an object whose
// type field matches the event name. When the channel is down the
// message is rejected, never queued.
func (c *Channel) Emit(event string, payload interface{}) error {
	if !c.connected.Load() {
		return domain.ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event, err)
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return domain.ErrNotConnected
	default:
		return fmt.Errorf("send buffer full for %s", event)
	}
}

// Disconnect permanently closes the channel. It does not reconnect.
func (c *Channel) Disconnect() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	return conn, err
}

// supervise owns the connection lifecycle: run the current socket until
// it fails, then redial with backoff until Disconnect.
func (c *Channel) supervise(conn *websocket.Conn) {
	backoff := c.opts.ReconnectMin

	for {
		if conn != nil {
			c.runConn(conn)
			conn = nil
			backoff = c.opts.ReconnectMin
		}

		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		next, err := c.dial(context.Background())
		if err != nil {
			log.L().Debug().Err(err).Dur("backoff", backoff).Msg("relay redial failed")
			backoff *= 2
			if backoff > c.opts.ReconnectMax {
				backoff = c.opts.ReconnectMax
			}
			continue
		}
		conn = next
	}
}

// runConn pumps one live socket until it drops or the channel closes.
func (c *Channel) runConn(conn *websocket.Conn) {
	defer conn.Close()

	connDone := make(chan struct{})
	defer close(connDone)
	go c.writePump(conn, connDone)

	// Unblock a pending read when Disconnect is called.
	go func() {
		select {
		case <-c.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			conn.Close()
		case <-connDone:
		}
	}()

	c.connected.Store(true)
	c.fireHooks(c.connectHooks())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.dispatch(data)
	}

	c.connected.Store(false)
	select {
	case <-c.done:
		// Deliberate shutdown, not a drop.
	default:
		c.fireHooks(c.disconnectHooks())
	}
}

func (c *Channel) writePump(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case data := <-c.sendCh:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (c *Channel) dispatch(data []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		log.L().Debug().Err(err).Msg("dropping unparseable relay message")
		return
	}

	if base.Type == domain.MsgTypeHello {
		var hello domain.HelloMessage
		if err := json.Unmarshal(data, &hello); err == nil {
			c.connID.Store(hello.ConnID)
		}
	}

	c.mu.RLock()
	h := c.handlers[base.Type]
	c.mu.RUnlock()
	if h != nil {
		h(data)
	}
}

func (c *Channel) connectHooks() []func() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(){}, c.onConnect...)
}

func (c *Channel) disconnectHooks() []func() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(){}, c.onDisconnect...)
}

func (c *Channel) fireHooks(hooks []func()) {
	for _, f := range hooks {
		f()
	}
}
