package client

import (
	"encoding/json"
	"testing"

	"github.com/platebook/chat/internal/protocol"
)

func newTestTracker(convs ...protocol.Conversation) *Tracker {
	return &Tracker{convs: convs}
}

func TestMessageForBackgroundConversationIncrementsUnread(t *testing.T) {
	tr := newTestTracker(
		protocol.Conversation{ID: "open", UpdatedAt: 100},
		protocol.Conversation{ID: "other", UpdatedAt: 50},
	)
	tr.SetActive("open")

	tr.applyMessage(protocol.Message{
		ID:             "m1",
		ConversationID: "other",
		Content:        "hi",
		MessageType:    protocol.MessageTypeText,
		CreatedAt:      200,
	})

	if got := tr.Unread("other"); got != 1 {
		t.Errorf("background conversation unread = %d, want 1", got)
	}
	if got := tr.Unread("open"); got != 0 {
		t.Errorf("open conversation unread = %d, want 0", got)
	}
}

func TestMessageForActiveConversationLeavesUnreadAtZero(t *testing.T) {
	tr := newTestTracker(protocol.Conversation{ID: "open"})
	tr.SetActive("open")

	for i := 0; i < 3; i++ {
		tr.applyMessage(protocol.Message{
			ID:             string(rune('a' + i)),
			ConversationID: "open",
			Content:        "hi",
			MessageType:    protocol.MessageTypeText,
			CreatedAt:      int64(100 + i),
		})
	}

	if got := tr.Unread("open"); got != 0 {
		t.Errorf("unread for open conversation = %d, want 0", got)
	}
}

func TestConversationListResortsByActivity(t *testing.T) {
	tr := newTestTracker(
		protocol.Conversation{ID: "a", UpdatedAt: 300},
		protocol.Conversation{ID: "b", UpdatedAt: 200},
		protocol.Conversation{ID: "c", UpdatedAt: 100},
	)

	tr.applyMessage(protocol.Message{
		ID:             "m1",
		ConversationID: "c",
		Content:        "bump",
		MessageType:    protocol.MessageTypeText,
		CreatedAt:      400,
	})

	convs := tr.Conversations()
	if convs[0].ID != "c" {
		t.Errorf("most recently active conversation should surface first, got %s", convs[0].ID)
	}
	if convs[0].LastMessage != "bump" {
		t.Errorf("lastMessage = %q, want %q", convs[0].LastMessage, "bump")
	}
}

func TestUpdatedAtIsMonotonic(t *testing.T) {
	tr := newTestTracker(protocol.Conversation{ID: "a", UpdatedAt: 500})

	// A stale message replayed from history must not move updatedAt backwards.
	tr.applyMessage(protocol.Message{
		ID:             "old",
		ConversationID: "a",
		Content:        "late",
		MessageType:    protocol.MessageTypeText,
		CreatedAt:      100,
	})

	if got := tr.Conversations()[0].UpdatedAt; got != 500 {
		t.Errorf("updatedAt = %d, want 500", got)
	}
}

func TestUnknownConversationIsTracked(t *testing.T) {
	tr := newTestTracker()

	tr.applyMessage(protocol.Message{
		ID:             "m1",
		ConversationID: "fresh",
		SenderName:     "Ana",
		Content:        "hello",
		MessageType:    protocol.MessageTypeText,
		CreatedAt:      10,
	})

	convs := tr.Conversations()
	if len(convs) != 1 || convs[0].ID != "fresh" {
		t.Fatalf("expected the new conversation to be tracked, got %+v", convs)
	}
	if convs[0].Kind != protocol.ConversationGroup {
		t.Errorf("sender name implies a group conversation, got kind %q", convs[0].Kind)
	}
	if convs[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", convs[0].UnreadCount)
	}
}

func TestBadgeAdoptsServerCountOnIdentified(t *testing.T) {
	tr := newTestTracker()
	tr.bumpBadge()
	tr.bumpBadge()

	raw, _ := json.Marshal(protocol.IdentifiedMsg{
		Type:       protocol.TypeIdentified,
		UserID:     "u1",
		BadgeCount: 7,
	})
	tr.handleEvent(protocol.TypeIdentified, raw)

	if got := tr.Badge(); got != 7 {
		t.Errorf("badge should adopt the server-trusted count, got %d", got)
	}
}

func TestBadgeDecrementFloorsAtZero(t *testing.T) {
	tr := newTestTracker()
	tr.bumpBadge()
	tr.MarkNotificationRead()
	tr.MarkNotificationRead()

	if got := tr.Badge(); got != 0 {
		t.Errorf("badge = %d, want 0", got)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.bumpBadge()
	}
	tr.MarkAllNotificationsRead()
	if got := tr.Badge(); got != 0 {
		t.Errorf("badge = %d, want 0", got)
	}
}

func TestClearActiveOnlyClearsOwnConversation(t *testing.T) {
	tr := newTestTracker(protocol.Conversation{ID: "a"}, protocol.Conversation{ID: "b"})
	tr.SetActive("a")
	tr.SetActive("b")

	// The old view's teardown runs after the new view took over.
	tr.ClearActive("a")

	tr.applyMessage(protocol.Message{
		ID:             "m1",
		ConversationID: "b",
		Content:        "hi",
		MessageType:    protocol.MessageTypeText,
		CreatedAt:      10,
	})
	if got := tr.Unread("b"); got != 0 {
		t.Errorf("conversation b is still active, unread = %d, want 0", got)
	}
}
