package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/platebook/chat/internal/history"
	"github.com/platebook/chat/internal/messaging"
	"github.com/platebook/chat/internal/metrics"
	"github.com/platebook/chat/internal/protocol"
	"github.com/platebook/chat/internal/ratelimit"
	"github.com/platebook/chat/internal/ws"
)

// handleIdentify binds a connection to a user. An empty user_id is an
// invalid_state error. Identifying again with the same user is a no-op;
// a different user rebinds the connection after releasing the old binding's
// notification subscription.
func (g *Gateway) handleIdentify(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.IdentifyMsg)
	if !ok {
		return
	}
	if m.UserID == "" {
		g.dispatcher.SendError(conn, "invalid_state", "user_id must not be empty")
		return
	}
	if conn.UserID == m.UserID {
		// Already identified as this user; just re-send the badge count.
		g.sendIdentified(conn)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if conn.UserID != "" {
		// Switching users on a live connection: tear down the old binding
		// the way a fresh connection would start.
		if err := g.nats.UnsubscribeNotify(conn.ID); err != nil {
			log.Printf("gateway: unsubscribe notify on rebind session=%s: %v", conn.ID, err)
		}
		for _, roomID := range g.rooms.DropSession(conn.ID) {
			g.releaseRoom(roomID)
		}
		metrics.ActiveRooms.Set(float64(g.rooms.RoomCount()))
	}

	if err := g.sessions.Identify(ctx, conn.ID, m.UserID, m.UserName); err != nil {
		log.Printf("gateway: identify session=%s user=%s: %v", conn.ID, m.UserID, err)
		g.dispatcher.SendError(conn, "identify_failed", "could not bind session")
		return
	}
	g.server.Connections().BindUser(conn, m.UserID, m.UserName)

	if err := g.nats.SubscribeNotify(m.UserID, conn.ID, g.onNotification(conn.ID)); err != nil {
		log.Printf("gateway: subscribe notify user=%s session=%s: %v", m.UserID, conn.ID, err)
	}

	g.sendIdentified(conn)
}

// sendIdentified confirms the handshake with the server-trusted badge count.
func (g *Gateway) sendIdentified(conn *ws.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	badge, err := g.unread.BadgeCount(ctx, conn.UserID)
	if err != nil {
		log.Printf("gateway: badge count user=%s: %v", conn.UserID, err)
	}

	data, err := protocol.NewServerMessage(protocol.TypeIdentified, protocol.IdentifiedMsg{
		UserID:     conn.UserID,
		BadgeCount: badge,
	})
	if err != nil {
		log.Printf("gateway: build identified session=%s: %v", conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("gateway: send identified session=%s: %v", conn.ID, err)
	}
}

// handleJoinRoom subscribes the session to a room and replies with the
// messages_loaded snapshot (and cached group info for group rooms).
// Joining twice is idempotent from the client's point of view: delivery
// stays single, only the reference count moves.
func (g *Gateway) handleJoinRoom(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.JoinRoomMsg)
	if !ok {
		return
	}
	if conn.UserID == "" {
		g.dispatcher.SendError(conn, "not_identified", "identify before joining rooms")
		return
	}
	if m.RoomID == "" {
		g.dispatcher.SendError(conn, "invalid_room", "missing room_id")
		return
	}

	_, newRoom := g.rooms.Join(m.RoomID, conn.ID)
	if newRoom {
		if err := g.nats.SubscribeToRoom(m.RoomID, g.onRoomEvent(m.RoomID)); err != nil {
			log.Printf("gateway: subscribe room=%s: %v", m.RoomID, err)
			g.rooms.Leave(m.RoomID, conn.ID)
			g.dispatcher.SendError(conn, "join_failed", "could not subscribe to room")
			return
		}
	}
	metrics.ActiveRooms.Set(float64(g.rooms.RoomCount()))
	g.recordRoomKind(m.RoomID, m.RoomKind)

	g.sendHistory(conn, m.RoomID, m.SinceTS, m.SinceID)

	if m.RoomKind == protocol.RoomKindGroup {
		g.groupMu.RLock()
		info := g.groupInfo[m.RoomID]
		g.groupMu.RUnlock()
		if info != nil {
			data, err := protocol.NewServerMessage(protocol.TypeGroupChatInfoLoaded, protocol.GroupChatInfoLoadedMsg{
				RoomID:       m.RoomID,
				Name:         info.Name,
				AdminID:      info.AdminID,
				Participants: info.Participants,
			})
			if err == nil {
				_ = conn.WriteMessage(data)
			}
		}
	}
}

// sendHistory delivers the room's recent messages. With a resume cursor the
// snapshot is the delta after (sinceTS, sinceID), straight from Postgres, so
// a reconnecting client fills its gap without refetching everything. Without
// one, the in-memory cache serves the snapshot when it holds a complete
// window; otherwise it comes from Postgres.
func (g *Gateway) sendHistory(conn *ws.Connection, roomID string, sinceTS int64, sinceID string) {
	var msgs []protocol.Message
	if sinceID != "" || sinceTS > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		var err error
		msgs, err = g.history.Since(ctx, roomID, sinceTS, sinceID)
		if err != nil {
			log.Printf("gateway: history since room=%s: %v", roomID, err)
			msgs = g.cache.Get(roomID)
		}
	} else if g.cache.Full(roomID) {
		msgs = g.cache.Get(roomID)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		var err error
		msgs, err = g.history.Recent(ctx, roomID, history.DefaultHistoryLimit)
		if err != nil {
			log.Printf("gateway: history room=%s: %v", roomID, err)
			// Degrade to whatever the cache holds rather than an empty reply.
			msgs = g.cache.Get(roomID)
		}
	}

	for i := range msgs {
		msgs[i] = protocol.NormalizeRecipe(msgs[i])
	}

	data, err := protocol.NewServerMessage(protocol.TypeMessagesLoaded, protocol.MessagesLoadedMsg{
		RoomID:   roomID,
		Messages: msgs,
	})
	if err != nil {
		log.Printf("gateway: build messages_loaded room=%s: %v", roomID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("gateway: send messages_loaded room=%s session=%s: %v", roomID, conn.ID, err)
	}
}

// handleLeaveRoom drops one of the session's references on the room.
func (g *Gateway) handleLeaveRoom(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.LeaveRoomMsg)
	if !ok {
		return
	}

	_, roomEmpty := g.rooms.Leave(m.RoomID, conn.ID)
	if roomEmpty {
		g.releaseRoom(m.RoomID)
	}
	metrics.ActiveRooms.Set(float64(g.rooms.RoomCount()))
}

// handleSendMessage validates, persists, and fans out a new message. The
// sender's own echo arrives through the room subject like everyone else's
// copy; there is no direct reply on success.
func (g *Gateway) handleSendMessage(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.SendMessageMsg)
	if !ok {
		return
	}
	if conn.UserID == "" {
		g.dispatcher.SendErrorFor(conn, "not_identified", "identify before sending", m.ClientMsgID)
		return
	}
	if !g.rooms.IsMember(m.RoomID, conn.ID) {
		// Covers both "never joined" and "removed from the group".
		g.dispatcher.SendErrorFor(conn, "not_in_room", "join the room before sending", m.ClientMsgID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	allowed, _ := g.limiter.Allow(ctx, conn.ID, ratelimit.RuleMessage)
	if !allowed {
		retry := g.limiter.RetryAfter(ctx, conn.ID, ratelimit.RuleMessage)
		data, err := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
			RetryAfter:  retry,
			ClientMsgID: m.ClientMsgID,
		})
		if err == nil {
			_ = conn.WriteMessage(data)
		}
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return
	}

	if err := protocol.ValidateSend(m); err != nil {
		g.dispatcher.SendErrorFor(conn, "invalid_message", err.Error(), m.ClientMsgID)
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return
	}

	start := time.Now()
	message := protocol.NormalizeRecipe(protocol.Message{
		ID:             uuid.New().String(),
		ConversationID: m.RoomID,
		SenderID:       conn.UserID,
		Content:        m.Content,
		MessageType:    m.MessageType,
		Recipe:         m.Recipe,
		ClientMsgID:    m.ClientMsgID,
		CreatedAt:      time.Now().UnixMilli(),
	})
	roomKind := g.roomKindOf(m.RoomID)
	if roomKind == protocol.RoomKindGroup {
		message.SenderName = conn.UserName
	}

	if err := g.history.Append(ctx, message); err != nil {
		log.Printf("gateway: append room=%s session=%s: %v", m.RoomID, conn.ID, err)
		g.dispatcher.SendErrorFor(conn, "send_failed", "message could not be stored", m.ClientMsgID)
		return
	}

	if err := g.unread.TouchConversation(ctx, m.RoomID, preview(message), message.CreatedAt); err != nil {
		log.Printf("gateway: touch conversation room=%s: %v", m.RoomID, err)
	}
	g.bumpRecipients(ctx, message)

	event := messaging.RoomEvent{
		Kind:     messaging.RoomEventMessage,
		RoomID:   m.RoomID,
		RoomKind: roomKind,
		FromUser: conn.UserID,
		FromName: conn.UserName,
		Message:  &message,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("gateway: marshal room event room=%s: %v", m.RoomID, err)
		return
	}
	if err := g.nats.PublishRoomEvent(m.RoomID, payload); err != nil {
		log.Printf("gateway: publish room=%s: %v", m.RoomID, err)
		g.dispatcher.SendErrorFor(conn, "send_failed", "message stored but not delivered", m.ClientMsgID)
		return
	}

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	metrics.DeliveryLatency.Observe(time.Since(start).Seconds())
}

// recordRoomKind remembers that a room was joined as a group. Private is the
// default, so only group declarations are stored.
func (g *Gateway) recordRoomKind(roomID, kind string) {
	if kind != protocol.RoomKindGroup {
		return
	}
	g.groupMu.Lock()
	g.roomKinds[roomID] = protocol.RoomKindGroup
	g.groupMu.Unlock()
}

// roomKindOf resolves a room's kind from the kinds declared at join time,
// falling back to the group-info cache. Group messages carry sender names;
// private ones do not.
func (g *Gateway) roomKindOf(roomID string) string {
	g.groupMu.RLock()
	defer g.groupMu.RUnlock()
	if g.roomKinds[roomID] == protocol.RoomKindGroup {
		return protocol.RoomKindGroup
	}
	if _, ok := g.groupInfo[roomID]; ok {
		return protocol.RoomKindGroup
	}
	return protocol.RoomKindPrivate
}

// bumpRecipients increments unread counters and publishes a new_message
// notification for every participant except the sender. The badge is
// incremented here, at publish time, so multi-device users count each
// notification once.
func (g *Gateway) bumpRecipients(ctx context.Context, message protocol.Message) {
	participants, err := g.unread.Participants(ctx, message.ConversationID)
	if err != nil {
		log.Printf("gateway: participants room=%s: %v", message.ConversationID, err)
		return
	}

	for _, userID := range participants {
		if userID == message.SenderID {
			continue
		}
		if _, err := g.unread.IncrementUnread(ctx, userID, message.ConversationID); err != nil {
			log.Printf("gateway: unread inc user=%s room=%s: %v", userID, message.ConversationID, err)
		}
		if _, err := g.unread.IncrementBadge(ctx, userID); err != nil {
			log.Printf("gateway: badge inc user=%s: %v", userID, err)
		}

		n := protocol.Notification{
			ID:         uuid.New().String(),
			Kind:       protocol.NotifyNewMessage,
			FromUserID: message.SenderID,
			ToUserID:   userID,
			Message:    preview(message),
			CreatedAt:  message.CreatedAt,
		}
		payload, err := json.Marshal(n)
		if err != nil {
			continue
		}
		if err := g.nats.PublishNotification(userID, payload); err != nil {
			log.Printf("gateway: publish notification user=%s: %v", userID, err)
		}
	}
}

// handleTyping relays a typing phase change into the room. Typing is
// ephemeral: nothing is persisted and there is no reply.
func (g *Gateway) handleTyping(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.TypingMsg)
	if !ok {
		return
	}
	if conn.UserID == "" || !g.rooms.IsMember(m.RoomID, conn.ID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if allowed, _ := g.limiter.Allow(ctx, conn.ID, ratelimit.RuleTyping); !allowed {
		return
	}

	event := messaging.RoomEvent{
		Kind:     messaging.RoomEventTyping,
		RoomID:   m.RoomID,
		FromUser: conn.UserID,
		FromName: conn.UserName,
		IsTyping: m.IsTyping,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := g.nats.PublishRoomEvent(m.RoomID, payload); err != nil {
		log.Printf("gateway: publish typing room=%s: %v", m.RoomID, err)
	}
}

// handleMarkRead zeroes the conversation's unread counter for the user.
func (g *Gateway) handleMarkRead(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.MarkReadMsg)
	if !ok {
		return
	}
	if conn.UserID == "" || m.ConversationID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := g.unread.MarkRead(ctx, conn.UserID, m.ConversationID); err != nil {
		log.Printf("gateway: mark read user=%s conv=%s: %v", conn.UserID, m.ConversationID, err)
	}
}

// preview is the conversation-list preview text for a message.
func preview(m protocol.Message) string {
	switch m.MessageType {
	case protocol.MessageTypeImage:
		return "[photo]"
	case protocol.MessageTypeRecipeShare:
		if m.Recipe != nil && m.Recipe.Title != "" {
			return "[recipe] " + m.Recipe.Title
		}
		return "[recipe]"
	default:
		return m.Content
	}
}
