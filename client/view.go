package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platebook/chat/internal/protocol"
)

// Conversation view phases.
const (
	PhaseLoading = "loading"
	PhaseReady   = "ready"
)

// GroupInfo is the group metadata delivered after joining a group room.
type GroupInfo struct {
	Name         string
	AdminID      string
	Participants []protocol.Participant
}

// pendingSend tracks one optimistically issued message until its server echo
// arrives or the confirm timeout fires.
type pendingSend struct {
	content string
	timer   *time.Timer
}

// ConversationView is the chat core for one open conversation. Opening it
// joins the room, marks the conversation read, and races a REST history
// fetch against the live snapshot; the two merge without duplicates. Closing
// it releases the room reference and cancels the typing timer on every exit
// path.
type ConversationView struct {
	c       *Client
	rest    *REST
	tracker *Tracker
	convID  string
	kind    string

	mu      sync.Mutex
	phase   string
	log     *messageLog
	pending map[string]*pendingSend
	group   *GroupInfo
	closed  bool

	typing  *typingNotifier
	typists *typingSet
	remove  func()

	// OnUpdate fires after the message list, typing set, or group info
	// changes; OnSendFailed delivers the original composer content of a send
	// that was rejected by the server or whose echo never arrived, so the UI
	// can restore it, plus the reason for the failure. Both may be nil and
	// run on background goroutines.
	OnUpdate     func()
	OnSendFailed func(clientMsgID, content, reason string)
}

// OpenConversation joins the conversation's room and starts loading it. The
// returned view must be closed when the user navigates away.
func OpenConversation(ctx context.Context, c *Client, rest *REST, tracker *Tracker, conversationID, kind string) (*ConversationView, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("client: missing conversation id")
	}

	v := &ConversationView{
		c:       c,
		rest:    rest,
		tracker: tracker,
		convID:  conversationID,
		kind:    kind,
		phase:   PhaseLoading,
		log:     newMessageLog(),
		pending: make(map[string]*pendingSend),
		typists: newTypingSet(),
	}
	v.typing = newTypingNotifier(c.config.TypingIdleTimeout, func(isTyping bool) {
		if err := c.send(protocol.TypingMsg{
			Type:     protocol.TypeTyping,
			RoomID:   conversationID,
			IsTyping: isTyping,
		}); err != nil {
			log.Printf("client: typing signal room=%s: %v", conversationID, err)
		}
	})

	v.remove = c.addListener(v.handleEvent)
	if err := c.Join(conversationID, kind); err != nil {
		v.remove()
		return nil, err
	}

	if tracker != nil {
		tracker.SetActive(conversationID)
		// Exactly once per view open, not per arriving message.
		if err := tracker.MarkRead(ctx, conversationID); err != nil {
			log.Printf("client: mark read conv=%s: %v", conversationID, err)
		}
	}
	if err := c.send(protocol.MarkReadMsg{
		Type:           protocol.TypeMarkRead,
		ConversationID: conversationID,
	}); err != nil {
		log.Printf("client: mark read signal conv=%s: %v", conversationID, err)
	}

	// The REST snapshot races the live messages_loaded reply; whichever
	// lands first populates the list and the other merges in by ID.
	if rest != nil {
		go v.fetchHistory(ctx)
	}

	return v, nil
}

// Close tears the view down: typing timer cancelled, listener removed, room
// reference released. Idempotent.
func (v *ConversationView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.typing.cancel()
	v.typists.clear()
	v.remove()
	if v.tracker != nil {
		v.tracker.ClearActive(v.convID)
	}
	if err := v.c.Leave(v.convID); err != nil {
		log.Printf("client: leave room=%s: %v", v.convID, err)
	}

	v.mu.Lock()
	for _, p := range v.pending {
		p.timer.Stop()
	}
	v.pending = make(map[string]*pendingSend)
	v.mu.Unlock()
}

// Phase returns "loading" until either history source has populated the view.
func (v *ConversationView) Phase() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

// Messages returns the rendered list in ascending (createdAt, id) order.
func (v *ConversationView) Messages() []protocol.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.log.all()
}

// Group returns the group metadata, or nil before it loads (and always nil
// for private conversations).
func (v *ConversationView) Group() *GroupInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.group
}

// Keystroke records composer input for the typing coordinator.
func (v *ConversationView) Keystroke() {
	v.typing.Keystroke()
}

// TypingLabel renders the counterparties' typing indicator, empty when no
// one is typing.
func (v *ConversationView) TypingLabel() string {
	return v.typists.Label()
}

// SendMessage sends a text message. The composer should clear immediately;
// if the send fails here the caller still holds the content, and if the
// server rejects it or the echo never arrives OnSendFailed returns it for a
// retry. The message
// joins the visible list only via the echo, never optimistically.
func (v *ConversationView) SendMessage(content string) (string, error) {
	return v.sendWith(content, protocol.MessageTypeText, nil)
}

// SendImage sends an image message. confirmed must be true: image sends are
// irreversible and the UI is expected to ask first.
func (v *ConversationView) SendImage(data string, confirmed bool) (string, error) {
	if !confirmed {
		return "", fmt.Errorf("client: image send requires confirmation")
	}
	return v.sendWith(data, protocol.MessageTypeImage, nil)
}

// SendRecipe shares a recipe as a structured payload.
func (v *ConversationView) SendRecipe(recipe *protocol.RecipeShare) (string, error) {
	if recipe == nil {
		return "", fmt.Errorf("client: missing recipe payload")
	}
	return v.sendWith("", protocol.MessageTypeRecipeShare, recipe)
}

func (v *ConversationView) sendWith(content, messageType string, recipe *protocol.RecipeShare) (string, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return "", fmt.Errorf("client: conversation closed")
	}
	v.mu.Unlock()

	msg := protocol.SendMessageMsg{
		Type:        protocol.TypeSendMessage,
		RoomID:      v.convID,
		ClientMsgID: uuid.New().String(),
		Content:     content,
		MessageType: messageType,
		Recipe:      recipe,
	}
	if err := protocol.ValidateSend(msg); err != nil {
		return "", err
	}

	v.trackPending(msg.ClientMsgID, content)
	if err := v.c.send(msg); err != nil {
		v.dropPending(msg.ClientMsgID)
		return "", err
	}

	// No dangling idle fire after an explicit send.
	v.typing.MessageSent()
	return msg.ClientMsgID, nil
}

// trackPending arms the confirm timeout for one in-flight send.
func (v *ConversationView) trackPending(clientMsgID, content string) {
	p := &pendingSend{content: content}
	p.timer = time.AfterFunc(v.c.config.SendConfirmTimeout, func() {
		v.mu.Lock()
		_, still := v.pending[clientMsgID]
		delete(v.pending, clientMsgID)
		closed := v.closed
		v.mu.Unlock()
		if still && !closed && v.OnSendFailed != nil {
			v.OnSendFailed(clientMsgID, content, "not confirmed by the server")
		}
	})
	v.mu.Lock()
	v.pending[clientMsgID] = p
	v.mu.Unlock()
}

// failPending cancels one in-flight send and reports the server-provided
// reason. A rejection for a send this view does not hold is a no-op; other
// views sharing the connection see the same frame and match by ID.
func (v *ConversationView) failPending(clientMsgID, reason string) {
	v.mu.Lock()
	p, ok := v.pending[clientMsgID]
	if ok {
		p.timer.Stop()
		delete(v.pending, clientMsgID)
	}
	closed := v.closed
	v.mu.Unlock()

	if ok && !closed && v.OnSendFailed != nil {
		v.OnSendFailed(clientMsgID, p.content, reason)
	}
}

func (v *ConversationView) dropPending(clientMsgID string) {
	v.mu.Lock()
	if p, ok := v.pending[clientMsgID]; ok {
		p.timer.Stop()
		delete(v.pending, clientMsgID)
	}
	v.mu.Unlock()
}

// fetchHistory loads the REST snapshot. A response landing after Close is
// discarded rather than applied.
func (v *ConversationView) fetchHistory(ctx context.Context) {
	msgs, err := v.rest.History(ctx, v.convID)
	if err != nil {
		log.Printf("client: history conv=%s: %v", v.convID, err)
		return
	}
	v.applySnapshot(msgs)
}

func (v *ConversationView) applySnapshot(msgs []protocol.Message) {
	for i := range msgs {
		msgs[i] = protocol.NormalizeRecipe(msgs[i])
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.log.mergeSnapshot(msgs)
	v.phase = PhaseReady
	v.mu.Unlock()

	v.notifyUpdate()
}

// handleEvent folds live events scoped to this conversation into the view.
// Runs on the read loop.
func (v *ConversationView) handleEvent(msgType string, raw json.RawMessage) {
	switch msgType {
	case protocol.TypeMessagesLoaded:
		var m protocol.MessagesLoadedMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.RoomID != v.convID {
			return
		}
		v.applySnapshot(m.Messages)

	case protocol.TypeMessageReceived:
		var m protocol.MessageReceivedMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.Message.ConversationID != v.convID {
			return
		}
		v.applyLive(m.Message)

	case protocol.TypeGroupMessageReceived:
		var m protocol.GroupMessageReceivedMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.Message.ConversationID != v.convID {
			return
		}
		v.applyLive(m.Message)

	case protocol.TypeTyping:
		var m protocol.ServerTypingMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.RoomID != v.convID {
			return
		}
		v.typists.Apply(m.UserID, m.UserName, m.IsTyping)
		v.notifyUpdate()

	case protocol.TypeError:
		var m protocol.ErrorMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.ClientMsgID == "" {
			return
		}
		v.failPending(m.ClientMsgID, m.Message)

	case protocol.TypeRateLimited:
		var m protocol.RateLimitedMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.ClientMsgID == "" {
			return
		}
		v.failPending(m.ClientMsgID, fmt.Sprintf("rate limited, retry in %ds", m.RetryAfter))

	case protocol.TypeGroupChatInfoLoaded:
		var m protocol.GroupChatInfoLoadedMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.RoomID != v.convID {
			return
		}
		v.mu.Lock()
		v.group = &GroupInfo{Name: m.Name, AdminID: m.AdminID, Participants: m.Participants}
		v.mu.Unlock()
		v.notifyUpdate()
	}
}

func (v *ConversationView) applyLive(m protocol.Message) {
	m = protocol.NormalizeRecipe(m)

	if m.ClientMsgID != "" && m.SenderID == v.c.UserID() {
		// Our own echo confirms the pending send.
		v.dropPending(m.ClientMsgID)
	}
	// A message from someone ends their typing phase even if the stop signal
	// is still in flight.
	v.typists.Apply(m.SenderID, m.SenderName, false)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	added := v.log.appendLive(m)
	v.phase = PhaseReady
	v.mu.Unlock()

	if added {
		v.notifyUpdate()
	}
}

func (v *ConversationView) notifyUpdate() {
	if v.OnUpdate != nil {
		v.OnUpdate()
	}
}
