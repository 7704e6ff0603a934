package client

import (
	"fmt"
	"sync"
	"time"
)

// typingNotifier is the outgoing half of the typing coordinator for one room.
// The first keystroke emits a start; subsequent keystrokes only reset the
// idle timer. The timer firing, or an explicit send, emits the stop.
type typingNotifier struct {
	mu     sync.Mutex
	send   func(isTyping bool)
	idle   time.Duration
	timer  *time.Timer
	active bool
}

func newTypingNotifier(idle time.Duration, send func(isTyping bool)) *typingNotifier {
	return &typingNotifier{send: send, idle: idle}
}

// Keystroke records composer input. Emits start on the first call of a
// phase; every call arms the idle timer afresh.
func (t *typingNotifier) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		t.active = true
		t.send(true)
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.idleFire)
}

func (t *typingNotifier) idleFire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.active = false
	t.send(false)
}

// MessageSent ends the typing phase immediately, with no dangling idle fire.
func (t *typingNotifier) MessageSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.active {
		t.active = false
		t.send(false)
	}
}

// cancel clears the phase without emitting. Used on view teardown, after
// which the room is left and a stop could no longer be delivered anyway.
func (t *typingNotifier) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.active = false
}

// typingSet is the incoming half: the set of counterparties currently typing
// in one room, in the order their start signals arrived.
type typingSet struct {
	mu    sync.Mutex
	names map[string]string // userID -> display name
	order []string          // userIDs, start order
}

func newTypingSet() *typingSet {
	return &typingSet{names: make(map[string]string)}
}

// Apply folds one typing signal in. A stop for a user who never started is a
// no-op.
func (s *typingSet) Apply(userID, name string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isTyping {
		if _, ok := s.names[userID]; !ok {
			s.order = append(s.order, userID)
		}
		s.names[userID] = name
		return
	}
	if _, ok := s.names[userID]; !ok {
		return
	}
	delete(s.names, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Label renders the indicator text for the current set.
func (s *typingSet) Label() string {
	s.mu.Lock()
	names := make([]string, 0, len(s.order))
	for _, id := range s.order {
		names = append(names, s.names[id])
	}
	s.mu.Unlock()
	return typingLabel(names)
}

func (s *typingSet) clear() {
	s.mu.Lock()
	s.names = make(map[string]string)
	s.order = nil
	s.mu.Unlock()
}

// typingLabel renders the deterministic indicator text: one name spells it
// out, two names are joined, three or more collapse to a count.
func typingLabel(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing…", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing…", names[0], names[1])
	default:
		return fmt.Sprintf("%s and %d others are typing…", names[0], len(names)-1)
	}
}
