package client

import (
	"sort"

	"github.com/platebook/chat/internal/protocol"
)

// messageLog is the append-only, duplicate-free message list backing one open
// conversation. The REST snapshot and the live stream race to populate it;
// deduplication by message ID makes the merge order-independent.
type messageLog struct {
	msgs []protocol.Message
	seen map[string]struct{}
}

func newMessageLog() *messageLog {
	return &messageLog{seen: make(map[string]struct{})}
}

// mergeSnapshot folds a historical snapshot into the log. Messages whose IDs
// already arrived live are skipped; the result is re-sorted because the
// snapshot and any early live arrivals may interleave arbitrarily.
func (l *messageLog) mergeSnapshot(snapshot []protocol.Message) int {
	added := 0
	for _, m := range snapshot {
		if m.ID == "" {
			continue
		}
		if _, dup := l.seen[m.ID]; dup {
			continue
		}
		l.seen[m.ID] = struct{}{}
		l.msgs = append(l.msgs, m)
		added++
	}
	if added > 0 {
		sort.Slice(l.msgs, func(i, j int) bool {
			return l.msgs[i].Before(l.msgs[j])
		})
	}
	return added
}

// appendLive adds one pushed message. The steady state is a plain tail
// append; if the stream ever violates send order the message is inserted at
// its sorted position instead. Returns false for duplicates.
func (l *messageLog) appendLive(m protocol.Message) bool {
	if m.ID == "" {
		return false
	}
	if _, dup := l.seen[m.ID]; dup {
		return false
	}
	l.seen[m.ID] = struct{}{}

	n := len(l.msgs)
	if n == 0 || l.msgs[n-1].Before(m) {
		l.msgs = append(l.msgs, m)
		return true
	}

	i := sort.Search(n, func(i int) bool {
		return m.Before(l.msgs[i])
	})
	l.msgs = append(l.msgs, protocol.Message{})
	copy(l.msgs[i+1:], l.msgs[i:])
	l.msgs[i] = m
	return true
}

// all returns a copy of the log in ascending (CreatedAt, ID) order.
func (l *messageLog) all() []protocol.Message {
	out := make([]protocol.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *messageLog) len() int {
	return len(l.msgs)
}
