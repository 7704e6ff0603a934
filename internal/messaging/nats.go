// Package messaging provides a NATS client wrapper for pub/sub messaging
// between gateway instances. It handles connection lifecycle, subject-based
// subscriptions, and convenience methods for room fan-out and per-user
// notification channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/platebook/chat/internal/protocol"
)

// NATS subject patterns used across gateway instances.
const (
	SubjectRoom   = "room"   // + .<conversation_id> (messages, typing)
	SubjectNotify = "notify" // + .<user_id> (badge notifications)
)

// Room event kinds carried on room.<conversation_id> subjects.
const (
	RoomEventMessage   = "message"
	RoomEventTyping    = "typing"
	RoomEventGroupInfo = "group_info"
)

// GroupInfo is the group metadata payload of a group_info room event,
// published by the backend when a group's membership or settings change.
type GroupInfo struct {
	Name         string                 `json:"name"`
	AdminID      string                 `json:"admin_id"`
	Participants []protocol.Participant `json:"participants"`
}

// RoomEvent is the payload published to room.<conversation_id> subjects.
// Message events carry the persisted message; typing events carry only the
// ephemeral signal.
type RoomEvent struct {
	Kind     string            `json:"kind"` // "message" or "typing"
	RoomID   string            `json:"room_id"`
	RoomKind string            `json:"room_kind"` // "private" or "group"
	FromUser string            `json:"from_user"`
	FromName string            `json:"from_name,omitempty"`
	IsTyping bool              `json:"is_typing,omitempty"`
	Message  *protocol.Message `json:"message,omitempty"`
	Group    *GroupInfo        `json:"group,omitempty"`
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "platebook-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeToRoom subscribes to the room.<conversationID> subject. Each
// gateway instance holds at most one NATS subscription per room regardless
// of how many local sessions have joined; local fan-out is the room
// registry's job.
func (c *NATSClient) SubscribeToRoom(conversationID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectRoom+"."+conversationID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeFromRoom unsubscribes the instance from a room's subject, once
// no local session is subscribed anymore.
func (c *NATSClient) UnsubscribeFromRoom(conversationID string) error {
	return c.unsubscribe(SubjectRoom + "." + conversationID)
}

// PublishRoomEvent publishes data to the room.<conversationID> subject.
func (c *NATSClient) PublishRoomEvent(conversationID string, data []byte) error {
	return c.Publish(SubjectRoom+"."+conversationID, data)
}

// SubscribeNotify subscribes to the notify.<userID> subject carrying badge
// notifications for a connected user. The subscription is keyed by session
// so several local sessions of the same user each get their own delivery.
func (c *NATSClient) SubscribeNotify(userID, sessionID string, handler func(data []byte)) error {
	subject := SubjectNotify + "." + userID
	key := "notifysub:" + sessionID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeNotify removes a session's notification subscription.
func (c *NATSClient) UnsubscribeNotify(sessionID string) error {
	return c.unsubscribe("notifysub:" + sessionID)
}

// PublishNotification publishes a notification to the notify.<userID>
// subject.
func (c *NATSClient) PublishNotification(userID string, data []byte) error {
	return c.Publish(SubjectNotify+"."+userID, data)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subscription key.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}
