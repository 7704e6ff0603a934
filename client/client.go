// Package client is the chat core used by Platebook frontends. It owns the
// single WebSocket connection to the gateway, multiplexes room subscriptions
// over it, and keeps conversation, typing, and unread state consistent with
// both the live stream and the REST backend.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/platebook/chat/internal/protocol"
)

// ErrInvalidState is returned by Connect when called with an empty user ID.
var ErrInvalidState = errors.New("client: invalid state: empty user id")

// Session lifecycle states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// Config holds client settings.
type Config struct {
	URL                string        // gateway WebSocket URL, e.g. ws://localhost:8080/ws
	TypingIdleTimeout  time.Duration // silence after which a typing start is auto-stopped
	SendConfirmTimeout time.Duration // how long to wait for a send's server echo
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		URL:                "ws://localhost:8080/ws",
		TypingIdleTimeout:  3 * time.Second,
		SendConfirmTimeout: 10 * time.Second,
	}
}

// transport is one physical connection's lifetime. A fresh transport is
// created per successful dial so a reconnecting Client never races its own
// previous read loop.
type transport struct {
	conn net.Conn
	done chan struct{}
	once sync.Once
}

func (t *transport) close() {
	t.once.Do(func() {
		close(t.done)
		t.conn.Close()
	})
}

// Client owns the connection to the gateway. Exactly one user may be bound at
// a time; connecting as a different user tears the previous session down
// first. All methods are goroutine-safe.
type Client struct {
	config Config

	mu         sync.Mutex
	state      string
	userID     string
	userName   string
	sessionID  string
	tr         *transport
	identified chan protocol.IdentifiedMsg

	wmu sync.Mutex // serializes frame writes

	rooms *roomSet

	lmu          sync.Mutex
	listeners    map[int]func(msgType string, raw json.RawMessage)
	nextListener int
}

// New creates a disconnected Client.
func New(config Config) *Client {
	if config.TypingIdleTimeout <= 0 {
		config.TypingIdleTimeout = 3 * time.Second
	}
	if config.SendConfirmTimeout <= 0 {
		config.SendConfirmTimeout = 10 * time.Second
	}
	c := &Client{
		config:    config,
		state:     StateDisconnected,
		listeners: make(map[int]func(string, json.RawMessage)),
	}
	c.rooms = newRoomSet(c.send)
	return c
}

// Connect establishes the session for userID. It is a no-op when already
// connected as the same user; when connected as a different user the old
// session is torn down first. It blocks until the identify handshake
// completes or ctx expires.
func (c *Client) Connect(ctx context.Context, userID, userName string) error {
	if userID == "" {
		return ErrInvalidState
	}

	c.mu.Lock()
	if c.state == StateConnected && c.userID == userID {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateDisconnected {
		c.teardownLocked()
	}
	c.state = StateConnecting
	c.userID = userID
	c.userName = userName
	identified := make(chan protocol.IdentifiedMsg, 1)
	c.identified = identified
	c.mu.Unlock()

	conn, _, _, err := ws.Dial(ctx, c.config.URL)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("client: dial: %w", err)
	}

	tr := &transport{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()

	go c.readLoop(tr)

	select {
	case <-ctx.Done():
		c.Disconnect()
		return ctx.Err()
	case <-tr.done:
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("client: connection closed during handshake")
	case m := <-identified:
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()
		// Fan the confirmation out so the read-state tracker can adopt the
		// server-trusted badge count.
		raw, _ := json.Marshal(m)
		c.dispatch(protocol.TypeIdentified, raw)
		return nil
	}
}

// Disconnect releases the transport and clears every room subscription. It is
// idempotent and safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
}

// teardownLocked closes the transport and resets session state. Caller holds
// c.mu.
func (c *Client) teardownLocked() {
	if c.tr != nil {
		c.tr.close()
		c.tr = nil
	}
	c.state = StateDisconnected
	c.sessionID = ""
	c.userID = ""
	c.userName = ""
	c.rooms.clear()
}

// State returns the current lifecycle state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the bound user, or an empty string when disconnected.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SessionID returns the gateway-assigned session ID, or an empty string
// before the handshake completes.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Join subscribes to a room's live events. Calls are reference-counted: the
// wire-level subscribe goes out only for the first local consumer, and a
// second consumer's Join never causes duplicate delivery.
func (c *Client) Join(roomID, kind string) error {
	return c.rooms.join(roomID, kind)
}

// Leave drops one consumer's reference on the room. The wire-level
// unsubscribe goes out only when the last reference is released.
func (c *Client) Leave(roomID string) error {
	return c.rooms.leave(roomID)
}

// Ping sends a protocol-level keepalive.
func (c *Client) Ping() error {
	return c.send(protocol.PingMsg{Type: protocol.TypePing})
}

// send marshals and writes one client frame. It is goroutine-safe.
func (c *Client) send(msg interface{}) error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return fmt.Errorf("client: not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("client: marshal: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := wsutil.WriteClientMessage(tr.conn, ws.OpText, data); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// addListener registers fn for every server event and returns its remover.
// Listeners run on the read loop goroutine and must not block.
func (c *Client) addListener(fn func(msgType string, raw json.RawMessage)) func() {
	c.lmu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.lmu.Unlock()
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Client) dispatch(msgType string, raw json.RawMessage) {
	c.lmu.Lock()
	fns := make([]func(string, json.RawMessage), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(msgType, raw)
	}
}

// readLoop reads server frames until the transport dies. The handshake
// messages are handled internally; everything else fans out to listeners.
func (c *Client) readLoop(tr *transport) {
	for {
		select {
		case <-tr.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(tr.conn)
		if err != nil {
			select {
			case <-tr.done:
				return // intentional close
			default:
			}
			log.Printf("client: read: %v", err)
			c.transportLost(tr)
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case protocol.TypeSessionCreated:
			var m protocol.SessionCreatedMsg
			if err := json.Unmarshal(data, &m); err != nil || m.SessionID == "" {
				continue
			}
			c.mu.Lock()
			c.sessionID = m.SessionID
			userID, userName := c.userID, c.userName
			c.mu.Unlock()
			if err := c.send(protocol.IdentifyMsg{
				Type:     protocol.TypeIdentify,
				UserID:   userID,
				UserName: userName,
			}); err != nil {
				log.Printf("client: identify: %v", err)
			}

		case protocol.TypeIdentified:
			var m protocol.IdentifiedMsg
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			c.mu.Lock()
			ch := c.identified
			c.mu.Unlock()
			if ch != nil {
				select {
				case ch <- m:
				default:
					// Re-identification after the initial handshake; fan out
					// so the badge recompute still lands.
					c.dispatch(protocol.TypeIdentified, data)
				}
			}

		case protocol.TypePong:
			// keepalive reply, nothing to do

		default:
			c.dispatch(envelope.Type, data)
		}
	}
}

// transportLost records an unexpected drop. Room subscriptions are cleared
// rather than replayed: the conversation-view layer re-issues joins when it
// regains focus.
func (c *Client) transportLost(tr *transport) {
	tr.close()
	c.mu.Lock()
	if c.tr == tr {
		c.tr = nil
		c.state = StateDisconnected
		c.sessionID = ""
		c.rooms.clear()
	}
	c.mu.Unlock()
}
