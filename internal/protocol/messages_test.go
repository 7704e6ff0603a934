package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join_room message
// ---------------------------------------------------------------------------

func TestParseClientMessage_JoinRoom(t *testing.T) {
	input := []byte(`{"type":"join_room","room_id":"conv-42","room_kind":"group"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoinRoom {
		t.Fatalf("expected type %q, got %q", TypeJoinRoom, msgType)
	}

	jm, ok := msg.(JoinRoomMsg)
	if !ok {
		t.Fatalf("expected JoinRoomMsg, got %T", msg)
	}
	if jm.RoomID != "conv-42" {
		t.Errorf("expected room_id %q, got %q", "conv-42", jm.RoomID)
	}
	if jm.RoomKind != RoomKindGroup {
		t.Errorf("expected room_kind %q, got %q", RoomKindGroup, jm.RoomKind)
	}
}

func TestParseClientMessage_JoinRoomWithResumeCursor(t *testing.T) {
	input := []byte(`{"type":"join_room","room_id":"conv-42","room_kind":"private","since_ts":1700000000000,"since_id":"m-17"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jm := msg.(JoinRoomMsg)
	if jm.SinceTS != 1700000000000 {
		t.Errorf("expected since_ts 1700000000000, got %d", jm.SinceTS)
	}
	if jm.SinceID != "m-17" {
		t.Errorf("expected since_id %q, got %q", "m-17", jm.SinceID)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid send_message message
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","room_id":"conv-1","client_msg_id":"cm-7","content":"Hello!","message_type":"text"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.RoomID != "conv-1" {
		t.Errorf("expected room_id %q, got %q", "conv-1", sm.RoomID)
	}
	if sm.ClientMsgID != "cm-7" {
		t.Errorf("expected client_msg_id %q, got %q", "cm-7", sm.ClientMsgID)
	}
	if sm.Content != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", sm.Content)
	}
	if sm.MessageType != MessageTypeText {
		t.Errorf("expected message_type %q, got %q", MessageTypeText, sm.MessageType)
	}
}

func TestParseClientMessage_SendMessageWithRecipe(t *testing.T) {
	input := []byte(`{"type":"send_message","room_id":"conv-1","client_msg_id":"cm-8","content":"","message_type":"recipe_share","recipe":{"target_url":"/posts/99","title":"Shakshuka","prep_time":"25 min"}}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sm := msg.(SendMessageMsg)
	if sm.Recipe == nil {
		t.Fatal("expected recipe payload, got nil")
	}
	if sm.Recipe.Title != "Shakshuka" {
		t.Errorf("expected title %q, got %q", "Shakshuka", sm.Recipe.Title)
	}
	if sm.Recipe.TargetURL != "/posts/99" {
		t.Errorf("expected target_url %q, got %q", "/posts/99", sm.Recipe.TargetURL)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing typing and mark_read messages
// ---------------------------------------------------------------------------

func TestParseClientMessage_Typing(t *testing.T) {
	input := []byte(`{"type":"typing","room_id":"conv-1","is_typing":true}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeTyping {
		t.Fatalf("expected type %q, got %q", TypeTyping, msgType)
	}
	tm := msg.(TypingMsg)
	if !tm.IsTyping {
		t.Error("expected is_typing=true")
	}
}

func TestParseClientMessage_MarkRead(t *testing.T) {
	input := []byte(`{"type":"mark_read","conversation_id":"conv-9"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mm := msg.(MarkReadMsg)
	if mm.ConversationID != "conv-9" {
		t.Errorf("expected conversation_id %q, got %q", "conv-9", mm.ConversationID)
	}
}

// ---------------------------------------------------------------------------
// Test: Error cases
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"teleport","room_id":"conv-1"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for unknown type, got nil")
	}
	if msgType != "teleport" {
		t.Errorf("expected type %q returned with error, got %q", "teleport", msgType)
	}
	if msg != nil {
		t.Errorf("expected nil msg, got %v", msg)
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	input := []byte(`{"room_id":"conv-1"}`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for missing type, got nil")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	input := []byte(`{"type":"typing",`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Creating server messages
// ---------------------------------------------------------------------------

func TestNewServerMessage_MessageReceived(t *testing.T) {
	payload := MessageReceivedMsg{
		Message: Message{
			ID:             "m-1",
			ConversationID: "conv-1",
			SenderID:       "u-2",
			Content:        "dinner's ready",
			MessageType:    MessageTypeText,
			CreatedAt:      1700000000000,
		},
	}

	data, err := NewServerMessage(TypeMessageReceived, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeMessageReceived {
		t.Errorf("expected type %q, got %v", TypeMessageReceived, decoded["type"])
	}
	inner, ok := decoded["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected embedded message object, got %T", decoded["message"])
	}
	if inner["id"] != "m-1" {
		t.Errorf("expected message id %q, got %v", "m-1", inner["id"])
	}
}

func TestNewServerMessage_TypeOverridesPayloadField(t *testing.T) {
	// The "type" key must always be the one passed to NewServerMessage, even
	// if the payload struct carries its own stale value.
	payload := PongMsg{Type: "stale"}

	data, err := NewServerMessage(TypePong, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypePong {
		t.Errorf("expected type %q, got %v", TypePong, decoded["type"])
	}
}

// ---------------------------------------------------------------------------
// Test: Message ordering helper
// ---------------------------------------------------------------------------

func TestMessageBefore(t *testing.T) {
	a := Message{ID: "a", CreatedAt: 100}
	b := Message{ID: "b", CreatedAt: 200}
	if !a.Before(b) {
		t.Error("earlier CreatedAt should sort first")
	}
	if b.Before(a) {
		t.Error("later CreatedAt should not sort first")
	}

	// Equal timestamps break ties by ID.
	c := Message{ID: "c", CreatedAt: 100}
	if !a.Before(c) {
		t.Error("equal CreatedAt should tie-break by ID")
	}
	if c.Before(a) {
		t.Error("tie-break by ID should be strict")
	}
}
