package client

import (
	"encoding/json"
	"log"

	"github.com/platebook/chat/internal/protocol"
)

// Route targets a notification resolves to when the user taps it.
const (
	RouteProfile      = "profile"
	RoutePost         = "post"
	RouteGroup        = "group"
	RouteConversation = "conversation"
)

// Route tells the UI shell where a notification leads. GroupID rides along as
// context for posts that live inside a group.
type Route struct {
	Target  string
	UserID  string
	PostID  string
	GroupID string
}

// RouteFor maps a notification to its destination. ok is false for kinds the
// client does not recognize; those still count toward the badge but have
// nowhere to go.
func RouteFor(n protocol.Notification) (Route, bool) {
	switch n.Kind {
	case protocol.NotifyFollow:
		return Route{Target: RouteProfile, UserID: n.FromUserID}, true
	case protocol.NotifyLike, protocol.NotifyComment, protocol.NotifyGroupPost:
		return Route{Target: RoutePost, PostID: n.PostID, GroupID: n.GroupID}, true
	case protocol.NotifyGroupJoinRequest, protocol.NotifyGroupRequestApproved:
		return Route{Target: RouteGroup, GroupID: n.GroupID}, true
	case protocol.NotifyNewMessage:
		return Route{Target: RouteConversation, UserID: n.FromUserID}, true
	default:
		return Route{}, false
	}
}

// Bridge fans new_notification events into the global badge and, for kinds
// with a destination, into the UI shell's handler. It is room-agnostic: the
// badge moves no matter which conversation is open.
type Bridge struct {
	tracker  *Tracker
	onNotify func(n protocol.Notification, route Route)
	remove   func()
}

// NewBridge attaches to the client's live stream. onNotify may be nil when
// only the badge matters. Close the Bridge when the session ends.
func NewBridge(c *Client, tracker *Tracker, onNotify func(n protocol.Notification, route Route)) *Bridge {
	b := &Bridge{tracker: tracker, onNotify: onNotify}
	b.remove = c.addListener(b.handleEvent)
	return b
}

// Close detaches the Bridge from the live stream.
func (b *Bridge) Close() {
	if b.remove != nil {
		b.remove()
		b.remove = nil
	}
}

func (b *Bridge) handleEvent(msgType string, raw json.RawMessage) {
	if msgType != protocol.TypeNewNotification {
		return
	}
	var m protocol.NewNotificationMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Printf("client: decode notification: %v", err)
		return
	}

	b.tracker.bumpBadge()

	route, ok := RouteFor(m.Notification)
	if !ok {
		log.Printf("client: unknown notification kind %q", m.Notification.Kind)
		return
	}
	if b.onNotify != nil {
		b.onNotify(m.Notification, route)
	}
}
