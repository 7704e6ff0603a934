package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnectRejectsEmptyUserID(t *testing.T) {
	c := New(DefaultConfig())

	if err := c.Connect(context.Background(), "", "Nobody"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %q, want disconnected", c.State())
	}
}

func TestConnectSameUserIsNoOp(t *testing.T) {
	// Any dial attempt would fail on this URL, so a nil error proves the
	// same-user path returned before touching the network.
	config := DefaultConfig()
	config.URL = "://not-a-url"
	c := New(config)
	c.mu.Lock()
	c.state = StateConnected
	c.userID = "u1"
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx, "u1", "Ada"); err != nil {
		t.Fatalf("reconnect as the same user should be a no-op, got %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %q, want connected", c.State())
	}
	if c.UserID() != "u1" {
		t.Errorf("user = %q, want u1", c.UserID())
	}
}

func TestConnectDifferentUserTearsDownOldSession(t *testing.T) {
	config := DefaultConfig()
	config.URL = "://not-a-url" // the dial itself fails fast
	c := New(config)
	c.mu.Lock()
	c.state = StateConnected
	c.userID = "u1"
	c.mu.Unlock()
	c.rooms.refs["conv1"] = 2
	c.rooms.kinds["conv1"] = "private"

	if err := c.Connect(context.Background(), "u2", "Ben"); err == nil {
		t.Fatal("dial on a broken URL should fail")
	}

	// The old user's state is gone even though the new dial failed.
	if c.rooms.joined("conv1") {
		t.Error("switching users must clear the previous room subscriptions")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %q, want disconnected after a failed dial", c.State())
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := New(DefaultConfig())
	c.mu.Lock()
	c.userID = "u1"
	c.sessionID = "s1"
	c.mu.Unlock()
	c.rooms.refs["conv1"] = 1

	c.Disconnect()
	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Errorf("state = %q, want disconnected", c.State())
	}
	if c.UserID() != "" || c.SessionID() != "" {
		t.Error("disconnect must clear the user binding and session")
	}
	if c.rooms.joined("conv1") {
		t.Error("disconnect must clear room subscriptions")
	}
}

func TestSendWithoutTransportFails(t *testing.T) {
	c := New(DefaultConfig())

	if err := c.Ping(); err == nil {
		t.Error("frames on a disconnected client should fail")
	}
}
