package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/platebook/chat/internal/protocol"
)

func TestCacheAddAndGet(t *testing.T) {
	c := NewCache()

	c.Add("conv1", protocol.Message{ID: "m1", SenderID: "a", Content: "hello", CreatedAt: 1})
	c.Add("conv1", protocol.Message{ID: "m2", SenderID: "b", Content: "hi", CreatedAt: 2})
	c.Add("conv1", protocol.Message{ID: "m3", SenderID: "a", Content: "how are you?", CreatedAt: 3})

	msgs := c.Get("conv1")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" {
		t.Errorf("expected first message 'hello', got %q", msgs[0].Content)
	}
	if msgs[1].Content != "hi" {
		t.Errorf("expected second message 'hi', got %q", msgs[1].Content)
	}
	if msgs[2].Content != "how are you?" {
		t.Errorf("expected third message 'how are you?', got %q", msgs[2].Content)
	}
}

func TestCacheRingWraparound(t *testing.T) {
	c := NewCache()

	// Add more messages than the buffer holds.
	total := MaxCachedMessages + 2
	for i := 1; i <= total; i++ {
		c.Add("conv1", protocol.Message{
			ID:        fmt.Sprintf("m-%d", i),
			Content:   fmt.Sprintf("msg-%d", i),
			CreatedAt: int64(i),
		})
	}

	msgs := c.Get("conv1")
	if len(msgs) != MaxCachedMessages {
		t.Fatalf("expected %d messages, got %d", MaxCachedMessages, len(msgs))
	}

	// Should contain the newest MaxCachedMessages in order.
	first := total - MaxCachedMessages + 1
	for i, msg := range msgs {
		expected := fmt.Sprintf("msg-%d", first+i)
		if msg.Content != expected {
			t.Errorf("index %d: expected %q, got %q", i, expected, msg.Content)
		}
	}

	if !c.Full("conv1") {
		t.Error("cache should report full after wraparound")
	}
}

func TestCacheGetNonExistentConversation(t *testing.T) {
	c := NewCache()

	msgs := c.Get("does-not-exist")
	if msgs == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(msgs) != 0 {
		t.Fatalf("expected 0 messages, got %d", len(msgs))
	}
	if c.Full("does-not-exist") {
		t.Error("missing conversation should not report full")
	}
}

func TestCacheRemove(t *testing.T) {
	c := NewCache()

	c.Add("conv1", protocol.Message{ID: "m1", Content: "hello", CreatedAt: 1})
	c.Add("conv1", protocol.Message{ID: "m2", Content: "hi", CreatedAt: 2})

	c.Remove("conv1")

	msgs := c.Get("conv1")
	if len(msgs) != 0 {
		t.Fatalf("expected 0 messages after remove, got %d", len(msgs))
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conv := fmt.Sprintf("conv-%d", n%3)
			for j := 0; j < 100; j++ {
				c.Add(conv, protocol.Message{
					ID:        fmt.Sprintf("m-%d-%d", n, j),
					CreatedAt: int64(j),
				})
				c.Get(conv)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		conv := fmt.Sprintf("conv-%d", i)
		if len(c.Get(conv)) == 0 {
			t.Errorf("expected messages in %s after concurrent writes", conv)
		}
	}
}
