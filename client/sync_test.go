package client

import (
	"testing"

	"github.com/platebook/chat/internal/protocol"
)

func msg(id string, createdAt int64) protocol.Message {
	return protocol.Message{
		ID:             id,
		ConversationID: "conv1",
		SenderID:       "u1",
		Content:        "m-" + id,
		MessageType:    protocol.MessageTypeText,
		CreatedAt:      createdAt,
	}
}

func assertOrder(t *testing.T, msgs []protocol.Message, wantIDs ...string) {
	t.Helper()
	if len(msgs) != len(wantIDs) {
		t.Fatalf("expected %d messages, got %d", len(wantIDs), len(msgs))
	}
	for i, id := range wantIDs {
		if msgs[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, msgs[i].ID)
		}
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Before(msgs[i-1]) {
			t.Errorf("order violated at %d: %s after %s", i, msgs[i].ID, msgs[i-1].ID)
		}
	}
}

func TestSnapshotThenLiveAppends(t *testing.T) {
	l := newMessageLog()
	l.mergeSnapshot([]protocol.Message{msg("a", 10), msg("b", 20)})
	l.appendLive(msg("c", 30))

	assertOrder(t, l.all(), "a", "b", "c")
}

func TestLiveBeforeSnapshotDeduplicates(t *testing.T) {
	l := newMessageLog()

	// The live stream wins the race and delivers "b" before the history
	// snapshot that also contains it.
	if !l.appendLive(msg("b", 20)) {
		t.Fatal("live message should be accepted")
	}
	added := l.mergeSnapshot([]protocol.Message{msg("a", 10), msg("b", 20)})
	if added != 1 {
		t.Errorf("snapshot should add only the unseen message, added %d", added)
	}

	assertOrder(t, l.all(), "a", "b")
}

func TestLiveDuplicateIsDropped(t *testing.T) {
	l := newMessageLog()
	l.appendLive(msg("a", 10))
	if l.appendLive(msg("a", 10)) {
		t.Error("duplicate ID should not be appended")
	}
	if l.len() != 1 {
		t.Errorf("expected 1 message, got %d", l.len())
	}
}

func TestOutOfOrderLiveArrivalIsInserted(t *testing.T) {
	l := newMessageLog()
	l.appendLive(msg("a", 10))
	l.appendLive(msg("c", 30))
	l.appendLive(msg("b", 20))

	assertOrder(t, l.all(), "a", "b", "c")
}

func TestTimestampTieBrokenByID(t *testing.T) {
	l := newMessageLog()
	l.appendLive(msg("b", 10))
	l.appendLive(msg("a", 10))

	assertOrder(t, l.all(), "a", "b")
}

func TestSnapshotMergesWithEarlyLiveArrivals(t *testing.T) {
	l := newMessageLog()

	// Two live messages arrive while the REST fetch is still in flight.
	l.appendLive(msg("d", 40))
	l.appendLive(msg("e", 50))
	l.mergeSnapshot([]protocol.Message{msg("a", 10), msg("b", 20), msg("c", 30), msg("d", 40)})

	assertOrder(t, l.all(), "a", "b", "c", "d", "e")
}

func TestSnapshotIgnoresMessagesWithoutID(t *testing.T) {
	l := newMessageLog()
	l.mergeSnapshot([]protocol.Message{{Content: "no id"}, msg("a", 10)})
	assertOrder(t, l.all(), "a")
}
