package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/platebook/chat/internal/protocol"
)

// Tracker maintains the conversation list's unread counters and the global
// notification badge. One Tracker serves the whole session: a message landing
// in a background conversation bumps that conversation's counter and resorts
// the list; the conversation currently on screen stays at zero.
type Tracker struct {
	rest *REST

	mu     sync.Mutex
	convs  []protocol.Conversation
	active string
	badge  int64

	remove func()
}

// NewTracker creates a Tracker wired to the client's live stream. Close it
// when the session ends.
func NewTracker(c *Client, rest *REST) *Tracker {
	t := &Tracker{rest: rest}
	t.remove = c.addListener(t.handleEvent)
	return t
}

// Close detaches the Tracker from the live stream.
func (t *Tracker) Close() {
	if t.remove != nil {
		t.remove()
		t.remove = nil
	}
}

// Load replaces the conversation list with the backend's, sorted most
// recently active first.
func (t *Tracker) Load(ctx context.Context) error {
	convs, err := t.rest.Conversations(ctx)
	if err != nil {
		return err
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt > convs[j].UpdatedAt
	})
	t.mu.Lock()
	t.convs = convs
	t.mu.Unlock()
	return nil
}

// Conversations returns a copy of the list, most recently active first.
func (t *Tracker) Conversations() []protocol.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Conversation, len(t.convs))
	copy(out, t.convs)
	return out
}

// SetActive marks the conversation the user is looking at. Messages for it
// no longer bump its unread counter.
func (t *Tracker) SetActive(conversationID string) {
	t.mu.Lock()
	t.active = conversationID
	t.mu.Unlock()
}

// ClearActive resets the active conversation, but only if it still is the
// given one, so a newly opened view is not clobbered by an old view's
// teardown.
func (t *Tracker) ClearActive(conversationID string) {
	t.mu.Lock()
	if t.active == conversationID {
		t.active = ""
	}
	t.mu.Unlock()
}

// MarkRead zeroes a conversation's unread counter locally and on the
// backend.
func (t *Tracker) MarkRead(ctx context.Context, conversationID string) error {
	t.mu.Lock()
	for i := range t.convs {
		if t.convs[i].ID == conversationID {
			t.convs[i].UnreadCount = 0
			break
		}
	}
	t.mu.Unlock()
	return t.rest.MarkRead(ctx, conversationID)
}

// Unread returns a conversation's unread count, zero if unknown.
func (t *Tracker) Unread(conversationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.convs {
		if t.convs[i].ID == conversationID {
			return t.convs[i].UnreadCount
		}
	}
	return 0
}

// Badge returns the global notification badge count.
func (t *Tracker) Badge() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.badge
}

// MarkNotificationRead decrements the badge for one handled notification.
func (t *Tracker) MarkNotificationRead() {
	t.mu.Lock()
	if t.badge > 0 {
		t.badge--
	}
	t.mu.Unlock()
}

// MarkAllNotificationsRead zeroes the badge.
func (t *Tracker) MarkAllNotificationsRead() {
	t.mu.Lock()
	t.badge = 0
	t.mu.Unlock()
}

func (t *Tracker) bumpBadge() {
	t.mu.Lock()
	t.badge++
	t.mu.Unlock()
}

// handleEvent folds live events into the tracker. Runs on the read loop.
func (t *Tracker) handleEvent(msgType string, raw json.RawMessage) {
	switch msgType {
	case protocol.TypeIdentified:
		// Adopt the server-trusted badge so counts missed during a
		// disconnect are recovered rather than drifting.
		var m protocol.IdentifiedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		t.mu.Lock()
		t.badge = m.BadgeCount
		t.mu.Unlock()

	case protocol.TypeMessageReceived:
		var m protocol.MessageReceivedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		t.applyMessage(m.Message)

	case protocol.TypeGroupMessageReceived:
		var m protocol.GroupMessageReceivedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		t.applyMessage(m.Message)
	}
}

// applyMessage updates lastMessage/updatedAt for the message's conversation
// and, when that conversation is not the open one, increments its unread
// counter by exactly one. The list resorts so the latest activity surfaces
// first.
func (t *Tracker) applyMessage(m protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i := range t.convs {
		if t.convs[i].ID == m.ConversationID {
			idx = i
			break
		}
	}
	if idx == -1 {
		// First sign of a conversation the list fetch predates. Track it
		// with what the message tells us; the next Load fills in the rest.
		kind := protocol.ConversationPrivate
		if m.SenderName != "" {
			kind = protocol.ConversationGroup
		}
		t.convs = append(t.convs, protocol.Conversation{ID: m.ConversationID, Kind: kind})
		idx = len(t.convs) - 1
	}

	conv := &t.convs[idx]
	conv.LastMessage = messagePreview(m)
	if m.CreatedAt > conv.UpdatedAt {
		conv.UpdatedAt = m.CreatedAt
	}
	if t.active != m.ConversationID {
		conv.UnreadCount++
	}

	sort.SliceStable(t.convs, func(i, j int) bool {
		return t.convs[i].UpdatedAt > t.convs[j].UpdatedAt
	})
}

// messagePreview is the one-line conversation-list rendering of a message.
func messagePreview(m protocol.Message) string {
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
