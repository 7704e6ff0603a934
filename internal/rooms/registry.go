// Package rooms tracks which sessions are subscribed to which conversation
// rooms on this gateway instance. Subscriptions are reference-counted per
// (room, session) pair so that two independent consumers on the same
// connection (e.g. two open views of one conversation) can each hold a
// join/leave bracket without one consumer's leave cutting delivery for the
// other. Delivery itself is set-based: however many references a session
// holds, it receives each room event exactly once.
package rooms

import "sync"

// Registry is a goroutine-safe subscription table for a single gateway
// instance.
type Registry struct {
	mu        sync.RWMutex
	byRoom    map[string]map[string]int // roomID -> sessionID -> refcount
	bySession map[string]map[string]int // sessionID -> roomID -> refcount
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		byRoom:    make(map[string]map[string]int),
		bySession: make(map[string]map[string]int),
	}
}

// Join adds one reference for sessionID in roomID. It returns newMember=true
// when the session was not previously subscribed to the room (refcount went
// 0 -> 1), and newRoom=true when the room had no subscribers at all on this
// instance, which is the caller's cue to open the wire-level (NATS)
// subscription.
func (r *Registry) Join(roomID, sessionID string) (newMember, newRoom bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.byRoom[roomID]
	if !ok {
		sessions = make(map[string]int)
		r.byRoom[roomID] = sessions
		newRoom = true
	}
	if sessions[sessionID] == 0 {
		newMember = true
	}
	sessions[sessionID]++

	roomsOf, ok := r.bySession[sessionID]
	if !ok {
		roomsOf = make(map[string]int)
		r.bySession[sessionID] = roomsOf
	}
	roomsOf[roomID]++

	return newMember, newRoom
}

// Leave drops one reference for sessionID in roomID. It returns gone=true
// when the session's last reference was released (the session no longer
// receives the room's events), and roomEmpty=true when the room has no
// subscribers left on this instance, the cue to close the wire-level
// subscription. Leaving a room the session never joined is a no-op.
func (r *Registry) Leave(roomID, sessionID string) (gone, roomEmpty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.byRoom[roomID]
	if !ok {
		return false, false
	}
	count, ok := sessions[sessionID]
	if !ok {
		return false, false
	}

	if count <= 1 {
		delete(sessions, sessionID)
		gone = true
	} else {
		sessions[sessionID] = count - 1
	}
	if len(sessions) == 0 {
		delete(r.byRoom, roomID)
		roomEmpty = true
	}

	if roomsOf, ok := r.bySession[sessionID]; ok {
		if roomsOf[roomID] <= 1 {
			delete(roomsOf, roomID)
		} else {
			roomsOf[roomID]--
		}
		if len(roomsOf) == 0 {
			delete(r.bySession, sessionID)
		}
	}

	return gone, roomEmpty
}

// Members returns a snapshot of the session IDs subscribed to roomID. Each
// session appears once regardless of how many references it holds.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byRoom[roomID]
	out := make([]string, 0, len(sessions))
	for id := range sessions {
		out = append(out, id)
	}
	return out
}

// IsMember reports whether sessionID currently holds at least one reference
// in roomID.
func (r *Registry) IsMember(roomID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.byRoom[roomID]
	if !ok {
		return false
	}
	return sessions[sessionID] > 0
}

// RoomsOf returns a snapshot of the room IDs the session is subscribed to.
func (r *Registry) RoomsOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomsOf := r.bySession[sessionID]
	out := make([]string, 0, len(roomsOf))
	for id := range roomsOf {
		out = append(out, id)
	}
	return out
}

// DropSession removes every reference the session holds in every room, as
// happens when its connection closes. It returns the rooms that were left
// with no subscribers, so the caller can close their wire-level
// subscriptions.
func (r *Registry) DropSession(sessionID string) (emptied []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomsOf, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	delete(r.bySession, sessionID)

	for roomID := range roomsOf {
		sessions, ok := r.byRoom[roomID]
		if !ok {
			continue
		}
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.byRoom, roomID)
			emptied = append(emptied, roomID)
		}
	}
	return emptied
}

// RoomCount returns the number of rooms with at least one subscriber.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	n := len(r.byRoom)
	r.mu.RUnlock()
	return n
}
