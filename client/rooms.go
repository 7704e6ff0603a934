package client

import (
	"sync"

	"github.com/platebook/chat/internal/protocol"
)

// roomSet reference-counts room subscriptions across all local consumers of
// the shared connection. Two views open on the same room each hold one
// reference; the wire-level subscribe fires on the first join and the
// unsubscribe only when the last consumer leaves, so one view's leave never
// breaks another's delivery.
type roomSet struct {
	mu    sync.Mutex
	send  func(msg interface{}) error
	refs  map[string]int
	kinds map[string]string
}

func newRoomSet(send func(msg interface{}) error) *roomSet {
	return &roomSet{
		send:  send,
		refs:  make(map[string]int),
		kinds: make(map[string]string),
	}
}

func (r *roomSet) join(roomID, kind string) error {
	r.mu.Lock()
	r.refs[roomID]++
	first := r.refs[roomID] == 1
	if first {
		r.kinds[roomID] = kind
	} else {
		kind = r.kinds[roomID]
	}
	r.mu.Unlock()

	if !first {
		return nil
	}
	if err := r.send(protocol.JoinRoomMsg{
		Type:     protocol.TypeJoinRoom,
		RoomID:   roomID,
		RoomKind: kind,
	}); err != nil {
		r.mu.Lock()
		r.refs[roomID]--
		if r.refs[roomID] <= 0 {
			delete(r.refs, roomID)
			delete(r.kinds, roomID)
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *roomSet) leave(roomID string) error {
	r.mu.Lock()
	n, ok := r.refs[roomID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	n--
	last := n == 0
	kind := r.kinds[roomID]
	if last {
		delete(r.refs, roomID)
		delete(r.kinds, roomID)
	} else {
		r.refs[roomID] = n
	}
	r.mu.Unlock()

	if !last {
		return nil
	}
	return r.send(protocol.LeaveRoomMsg{
		Type:     protocol.TypeLeaveRoom,
		RoomID:   roomID,
		RoomKind: kind,
	})
}

// joined reports whether the room currently has at least one local consumer.
func (r *roomSet) joined(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[roomID] > 0
}

// clear drops every subscription without sending leave frames. Used on
// disconnect, when the gateway has already released the session's rooms.
func (r *roomSet) clear() {
	r.mu.Lock()
	r.refs = make(map[string]int)
	r.kinds = make(map[string]string)
	r.mu.Unlock()
}
