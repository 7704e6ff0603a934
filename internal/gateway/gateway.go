// Package gateway composes the WebSocket server, room registry, stores, and
// NATS fan-out into the chat delivery service. It owns the dispatcher
// handlers for the client-facing wire protocol: identify, join_room,
// leave_room, send_message, typing, and mark_read.
package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/platebook/chat/internal/history"
	"github.com/platebook/chat/internal/messaging"
	"github.com/platebook/chat/internal/metrics"
	"github.com/platebook/chat/internal/protocol"
	"github.com/platebook/chat/internal/ratelimit"
	"github.com/platebook/chat/internal/rooms"
	"github.com/platebook/chat/internal/session"
	"github.com/platebook/chat/internal/unread"
	"github.com/platebook/chat/internal/ws"
)

// storeTimeout bounds Redis and Postgres calls made from frame handlers.
const storeTimeout = 3 * time.Second

// Gateway wires the delivery subsystem together. One Gateway runs per
// process; several processes share state through Redis, Postgres, and NATS.
type Gateway struct {
	server     *ws.Server
	dispatcher *ws.MessageDispatcher
	sessions   *session.Store
	rooms      *rooms.Registry
	history    *history.Store
	cache      *history.Cache
	unread     *unread.Store
	nats       *messaging.NATSClient
	limiter    *ratelimit.Limiter

	// groupInfo caches the latest group_info event per room so late joiners
	// get group_chat_info_loaded without waiting for the next change.
	// roomKinds records the kind each client declared at join time, so a
	// send in a group room classifies as group even when no group_info
	// event has arrived since the room was subscribed.
	groupMu   sync.RWMutex
	groupInfo map[string]*messaging.GroupInfo
	roomKinds map[string]string
}

// New creates a Gateway over the given collaborators and registers its
// protocol handlers on a fresh dispatcher.
func New(config ws.ServerConfig, sessions *session.Store, hist *history.Store, unreadStore *unread.Store, nats *messaging.NATSClient) *Gateway {
	g := &Gateway{
		sessions:  sessions,
		rooms:     rooms.NewRegistry(),
		history:   hist,
		cache:     history.NewCache(),
		unread:    unreadStore,
		nats:      nats,
		limiter:   ratelimit.NewLimiter(sessions.Client()),
		groupInfo: make(map[string]*messaging.GroupInfo),
		roomKinds: make(map[string]string),
	}

	g.dispatcher = ws.NewMessageDispatcher(nil)
	g.dispatcher.Register(protocol.TypeIdentify, g.handleIdentify)
	g.dispatcher.Register(protocol.TypeJoinRoom, g.handleJoinRoom)
	g.dispatcher.Register(protocol.TypeLeaveRoom, g.handleLeaveRoom)
	g.dispatcher.Register(protocol.TypeSendMessage, g.handleSendMessage)
	g.dispatcher.Register(protocol.TypeTyping, g.handleTyping)
	g.dispatcher.Register(protocol.TypeMarkRead, g.handleMarkRead)

	g.server = ws.NewServer(config, sessions, g.dispatcher.Dispatch)
	g.dispatcher.SetServer(g.server)
	g.server.SetOnDisconnect(g.onDisconnect)

	return g
}

// Start runs the WebSocket server. It blocks until the server stops.
func (g *Gateway) Start() error {
	return g.server.Start()
}

// Shutdown gracefully stops the WebSocket server.
func (g *Gateway) Shutdown() error {
	return g.server.Shutdown()
}

// Server exposes the underlying WebSocket server, mainly for tests.
func (g *Gateway) Server() *ws.Server {
	return g.server
}

// onDisconnect releases everything a closing connection holds: its room
// references (closing NATS room subscriptions that became unused), and its
// notification subscription.
func (g *Gateway) onDisconnect(conn *ws.Connection) {
	for _, roomID := range g.rooms.DropSession(conn.ID) {
		g.releaseRoom(roomID)
	}
	metrics.ActiveRooms.Set(float64(g.rooms.RoomCount()))

	if conn.UserID != "" {
		if err := g.nats.UnsubscribeNotify(conn.ID); err != nil {
			log.Printf("gateway: unsubscribe notify session=%s: %v", conn.ID, err)
		}
	}
}

// releaseRoom closes the instance-level subscription and cache for a room
// that no longer has local subscribers.
func (g *Gateway) releaseRoom(roomID string) {
	if err := g.nats.UnsubscribeFromRoom(roomID); err != nil {
		log.Printf("gateway: unsubscribe room=%s: %v", roomID, err)
	}
	g.cache.Remove(roomID)
	g.groupMu.Lock()
	delete(g.groupInfo, roomID)
	delete(g.roomKinds, roomID)
	g.groupMu.Unlock()
}

// onRoomEvent is the NATS fan-out path: one event arrives per room per
// instance, and the registry says which local sessions get a copy.
func (g *Gateway) onRoomEvent(roomID string) func(data []byte) {
	return func(data []byte) {
		var event messaging.RoomEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("gateway: room event unmarshal room=%s: %v", roomID, err)
			return
		}

		switch event.Kind {
		case messaging.RoomEventMessage:
			g.deliverMessage(roomID, event)
		case messaging.RoomEventTyping:
			g.deliverTyping(roomID, event)
		case messaging.RoomEventGroupInfo:
			g.deliverGroupInfo(roomID, event)
		default:
			log.Printf("gateway: unknown room event kind=%q room=%s", event.Kind, roomID)
		}
	}
}

// deliverMessage fans a message event out to every local subscriber of the
// room, including the sender's own sessions: the echo is what confirms the
// sender's pending send.
func (g *Gateway) deliverMessage(roomID string, event messaging.RoomEvent) {
	if event.Message == nil {
		return
	}
	g.cache.Add(roomID, *event.Message)

	msgType := protocol.TypeMessageReceived
	var payload interface{} = protocol.MessageReceivedMsg{Message: *event.Message}
	if event.RoomKind == protocol.RoomKindGroup {
		msgType = protocol.TypeGroupMessageReceived
		payload = protocol.GroupMessageReceivedMsg{Message: *event.Message}
	}

	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("gateway: build %s room=%s: %v", msgType, roomID, err)
		return
	}

	for _, sessionID := range g.rooms.Members(roomID) {
		if err := g.server.SendMessage(sessionID, data); err != nil {
			log.Printf("gateway: deliver message room=%s session=%s: %v", roomID, sessionID, err)
			continue
		}
		metrics.MessagesTotal.WithLabelValues("delivered").Inc()
	}
}

// deliverTyping relays a typing signal to every local subscriber except the
// sessions of the user who is typing.
func (g *Gateway) deliverTyping(roomID string, event messaging.RoomEvent) {
	data, err := protocol.NewServerMessage(protocol.TypeTyping, protocol.ServerTypingMsg{
		RoomID:   roomID,
		UserID:   event.FromUser,
		UserName: event.FromName,
		IsTyping: event.IsTyping,
	})
	if err != nil {
		log.Printf("gateway: build typing room=%s: %v", roomID, err)
		return
	}

	for _, sessionID := range g.rooms.Members(roomID) {
		conn := g.server.Connections().Get(sessionID)
		if conn == nil || conn.UserID == event.FromUser {
			continue
		}
		_ = conn.WriteMessage(data)
		metrics.TypingSignalsTotal.Inc()
	}
}

// deliverGroupInfo caches and forwards group metadata to local subscribers.
func (g *Gateway) deliverGroupInfo(roomID string, event messaging.RoomEvent) {
	if event.Group == nil {
		return
	}
	g.groupMu.Lock()
	g.groupInfo[roomID] = event.Group
	g.groupMu.Unlock()

	data, err := protocol.NewServerMessage(protocol.TypeGroupChatInfoLoaded, protocol.GroupChatInfoLoadedMsg{
		RoomID:       roomID,
		Name:         event.Group.Name,
		AdminID:      event.Group.AdminID,
		Participants: event.Group.Participants,
	})
	if err != nil {
		log.Printf("gateway: build group info room=%s: %v", roomID, err)
		return
	}

	for _, sessionID := range g.rooms.Members(roomID) {
		_ = g.server.SendMessage(sessionID, data)
	}
}

// onNotification forwards a badge notification to one local session. Badge
// accounting happens at publish time, not here, so a user with several open
// connections is counted once.
func (g *Gateway) onNotification(sessionID string) func(data []byte) {
	return func(data []byte) {
		var n protocol.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			log.Printf("gateway: notification unmarshal session=%s: %v", sessionID, err)
			return
		}

		out, err := protocol.NewServerMessage(protocol.TypeNewNotification, protocol.NewNotificationMsg{
			Notification: n,
		})
		if err != nil {
			log.Printf("gateway: build notification session=%s: %v", sessionID, err)
			return
		}
		if err := g.server.SendMessage(sessionID, out); err != nil {
			log.Printf("gateway: deliver notification session=%s: %v", sessionID, err)
			return
		}
		metrics.NotificationsTotal.Inc()
	}
}
