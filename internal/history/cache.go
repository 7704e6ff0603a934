package history

import (
	"sync"

	"github.com/platebook/chat/internal/protocol"
)

// MaxCachedMessages is the number of recent messages retained per
// conversation in the in-memory cache.
const MaxCachedMessages = 50

// Cache stores the last N messages per conversation in memory, so a join's
// messages_loaded snapshot can usually be served without touching Postgres.
// It is goroutine-safe and uses a ring buffer internally.
type Cache struct {
	mu      sync.RWMutex
	buffers map[string]*ringBuffer // conversationID -> ring buffer
}

// ringBuffer is a fixed-size circular buffer of messages.
type ringBuffer struct {
	items []protocol.Message
	pos   int
	count int
}

// NewCache creates a new empty Cache.
func NewCache() *Cache {
	return &Cache{
		buffers: make(map[string]*ringBuffer),
	}
}

// Add appends a message to the conversation's ring buffer. If the buffer is
// full, the oldest message is overwritten.
func (c *Cache) Add(conversationID string, msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rb, ok := c.buffers[conversationID]
	if !ok {
		rb = &ringBuffer{
			items: make([]protocol.Message, MaxCachedMessages),
		}
		c.buffers[conversationID] = rb
	}

	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % MaxCachedMessages
	if rb.count < MaxCachedMessages {
		rb.count++
	}
}

// Get returns the cached messages for a conversation in arrival order
// (oldest first). Returns an empty slice if the conversation has no cache.
func (c *Cache) Get(conversationID string) []protocol.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rb, ok := c.buffers[conversationID]
	if !ok {
		return []protocol.Message{}
	}

	result := make([]protocol.Message, rb.count)
	// The oldest message is at position (pos - count) mod MaxCachedMessages.
	start := (rb.pos - rb.count + MaxCachedMessages) % MaxCachedMessages
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxCachedMessages]
	}
	return result
}

// Full reports whether the conversation's cache holds a complete recent
// window (the ring has reached capacity). Only then can a join snapshot be
// served from memory; a partially filled buffer may be missing older
// messages that exist only in Postgres.
func (c *Cache) Full(conversationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rb, ok := c.buffers[conversationID]
	return ok && rb.count == MaxCachedMessages
}

// Remove deletes the cache for a conversation (called when the last local
// subscriber leaves the room).
func (c *Cache) Remove(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.buffers, conversationID)
}
