// Package protocol defines the WebSocket message types and structures used for
// communication between the chat client and the gateway. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeIdentify    = "identify"
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"
	TypeTyping      = "typing"
	TypeMarkRead    = "mark_read"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated       = "session_created"
	TypeIdentified           = "identified"
	TypeMessagesLoaded       = "messages_loaded"
	TypeMessageReceived      = "message_received"
	TypeGroupMessageReceived = "group_message_received"
	TypeGroupChatInfoLoaded  = "group_chat_info_loaded"
	TypeNewNotification      = "new_notification"
	TypeRateLimited          = "rate_limited"
	TypeError                = "error"
	TypePong                 = "pong"
)

// Room kinds carried on join/leave control messages.
const (
	RoomKindPrivate = "private"
	RoomKindGroup   = "group"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// IdentifyMsg binds the connection to an authenticated user. Sent once by
// the client after session_created; the gateway will not deliver room or
// notification traffic before it.
type IdentifyMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// JoinRoomMsg subscribes the connection to a conversation's live events.
// SinceTS/SinceID form an optional resume cursor: when set, the
// messages_loaded reply carries only the messages after that point, so a
// reconnecting client fills its gap without refetching the whole snapshot.
type JoinRoomMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	RoomKind string `json:"room_kind"` // "private" or "group"
	SinceTS  int64  `json:"since_ts,omitempty"`
	SinceID  string `json:"since_id,omitempty"`
}

// LeaveRoomMsg unsubscribes the connection from a conversation's live events.
type LeaveRoomMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	RoomKind string `json:"room_kind"`
}

// SendMessageMsg carries a new chat message from the composer. ClientMsgID is
// a client-generated idempotency ID echoed back on the confirmed message so
// the sender can reconcile its pending-send table.
type SendMessageMsg struct {
	Type        string       `json:"type"`
	RoomID      string       `json:"room_id"`
	ClientMsgID string       `json:"client_msg_id"`
	Content     string       `json:"content"`
	MessageType string       `json:"message_type"` // "text", "image", "recipe_share"
	Recipe      *RecipeShare `json:"recipe,omitempty"`
}

// TypingMsg signals that the user started or stopped typing in a room.
type TypingMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// MarkReadMsg zeroes the unread counter for a conversation.
type MarkReadMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new session is established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// IdentifiedMsg confirms the identify handshake. BadgeCount is the
// server-trusted unread notification total, so the client can recompute its
// badge after reconnects instead of trusting a running count.
type IdentifiedMsg struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	BadgeCount int64  `json:"badge_count"`
}

// MessagesLoadedMsg delivers a recent-history snapshot for a room after a
// successful join.
type MessagesLoadedMsg struct {
	Type     string    `json:"type"`
	RoomID   string    `json:"room_id"`
	Messages []Message `json:"messages"`
}

// MessageReceivedMsg delivers a new private chat message.
type MessageReceivedMsg struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// GroupMessageReceivedMsg delivers a new group chat message.
type GroupMessageReceivedMsg struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// GroupChatInfoLoadedMsg delivers group metadata after joining a group room.
type GroupChatInfoLoadedMsg struct {
	Type         string        `json:"type"`
	RoomID       string        `json:"room_id"`
	Name         string        `json:"name"`
	AdminID      string        `json:"admin_id"`
	Participants []Participant `json:"participants"`
}

// ServerTypingMsg relays a counterparty's typing indicator to the client.
type ServerTypingMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// NewNotificationMsg announces a domain event (message, like, comment,
// follow, group activity) for the global badge, independent of which
// conversation is open.
type NewNotificationMsg struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
// ClientMsgID is echoed when the rejected frame was a send, so the sender can
// fail the matching pending message immediately.
type RateLimitedMsg struct {
	Type        string `json:"type"`
	RetryAfter  int    `json:"retry_after"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// ErrorMsg is sent by the server to communicate an error condition.
// ClientMsgID identifies the rejected send when the error is a send
// rejection; it is empty on connection-level errors.
type ErrorMsg struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeIdentify:
		var m IdentifyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinRoom:
		var m JoinRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveRoom:
		var m LeaveRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
