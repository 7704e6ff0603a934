package client

import (
	"fmt"
	"testing"

	"github.com/platebook/chat/internal/protocol"
)

// frameRecorder captures control messages the room set would put on the wire.
type frameRecorder struct {
	joins  []string
	leaves []string
	fail   bool
}

func (r *frameRecorder) send(msg interface{}) error {
	if r.fail {
		return fmt.Errorf("wire down")
	}
	switch m := msg.(type) {
	case protocol.JoinRoomMsg:
		r.joins = append(r.joins, m.RoomID)
	case protocol.LeaveRoomMsg:
		r.leaves = append(r.leaves, m.RoomID)
	}
	return nil
}

func TestJoinSubscribesOnceForManyConsumers(t *testing.T) {
	rec := &frameRecorder{}
	rs := newRoomSet(rec.send)

	for i := 0; i < 5; i++ {
		if err := rs.join("room1", protocol.RoomKindPrivate); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}

	if len(rec.joins) != 1 {
		t.Errorf("expected a single wire-level subscribe, got %d", len(rec.joins))
	}
}

func TestLeaveUnsubscribesOnlyWhenLastConsumerLeaves(t *testing.T) {
	rec := &frameRecorder{}
	rs := newRoomSet(rec.send)

	rs.join("room1", protocol.RoomKindGroup)
	rs.join("room1", protocol.RoomKindGroup)

	if err := rs.leave("room1"); err != nil {
		t.Fatalf("first leave: %v", err)
	}
	if len(rec.leaves) != 0 {
		t.Fatal("one consumer's leave must not break the other's delivery")
	}
	if !rs.joined("room1") {
		t.Fatal("room should still be joined while a consumer remains")
	}

	if err := rs.leave("room1"); err != nil {
		t.Fatalf("last leave: %v", err)
	}
	if len(rec.leaves) != 1 {
		t.Errorf("expected a single wire-level unsubscribe, got %d", len(rec.leaves))
	}
	if rs.joined("room1") {
		t.Error("room should be released after the last consumer left")
	}
}

func TestLeaveUnknownRoomIsNoop(t *testing.T) {
	rec := &frameRecorder{}
	rs := newRoomSet(rec.send)

	if err := rs.leave("never-joined"); err != nil {
		t.Fatalf("leave of unknown room: %v", err)
	}
	if len(rec.leaves) != 0 {
		t.Error("no unsubscribe should go out for an unknown room")
	}
}

func TestJoinRollsBackRefOnSendFailure(t *testing.T) {
	rec := &frameRecorder{fail: true}
	rs := newRoomSet(rec.send)

	if err := rs.join("room1", protocol.RoomKindPrivate); err == nil {
		t.Fatal("expected join to surface the wire error")
	}
	if rs.joined("room1") {
		t.Error("failed join must not leave a dangling reference")
	}

	// A later join retries the wire-level subscribe.
	rec.fail = false
	if err := rs.join("room1", protocol.RoomKindPrivate); err != nil {
		t.Fatalf("retry join: %v", err)
	}
	if len(rec.joins) != 1 {
		t.Errorf("expected the retry to subscribe, got %d joins", len(rec.joins))
	}
}

func TestClearDropsAllRoomsSilently(t *testing.T) {
	rec := &frameRecorder{}
	rs := newRoomSet(rec.send)

	rs.join("room1", protocol.RoomKindPrivate)
	rs.join("room2", protocol.RoomKindGroup)
	rs.clear()

	if rs.joined("room1") || rs.joined("room2") {
		t.Error("clear should drop every subscription")
	}
	if len(rec.leaves) != 0 {
		t.Error("clear must not emit leave frames on a dead transport")
	}
}
