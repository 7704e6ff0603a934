package client

import (
	"testing"

	"github.com/platebook/chat/internal/protocol"
)

func TestRouteForKnownKinds(t *testing.T) {
	cases := []struct {
		kind string
		n    protocol.Notification
		want Route
	}{
		{
			kind: protocol.NotifyFollow,
			n:    protocol.Notification{Kind: protocol.NotifyFollow, FromUserID: "u2"},
			want: Route{Target: RouteProfile, UserID: "u2"},
		},
		{
			kind: protocol.NotifyLike,
			n:    protocol.Notification{Kind: protocol.NotifyLike, PostID: "p1"},
			want: Route{Target: RoutePost, PostID: "p1"},
		},
		{
			kind: protocol.NotifyComment,
			n:    protocol.Notification{Kind: protocol.NotifyComment, PostID: "p1"},
			want: Route{Target: RoutePost, PostID: "p1"},
		},
		{
			kind: protocol.NotifyGroupPost,
			n:    protocol.Notification{Kind: protocol.NotifyGroupPost, PostID: "p1", GroupID: "g1"},
			want: Route{Target: RoutePost, PostID: "p1", GroupID: "g1"},
		},
		{
			kind: protocol.NotifyGroupJoinRequest,
			n:    protocol.Notification{Kind: protocol.NotifyGroupJoinRequest, GroupID: "g1"},
			want: Route{Target: RouteGroup, GroupID: "g1"},
		},
		{
			kind: protocol.NotifyGroupRequestApproved,
			n:    protocol.Notification{Kind: protocol.NotifyGroupRequestApproved, GroupID: "g1"},
			want: Route{Target: RouteGroup, GroupID: "g1"},
		},
		{
			kind: protocol.NotifyNewMessage,
			n:    protocol.Notification{Kind: protocol.NotifyNewMessage, FromUserID: "u2"},
			want: Route{Target: RouteConversation, UserID: "u2"},
		},
	}

	for _, tc := range cases {
		got, ok := RouteFor(tc.n)
		if !ok {
			t.Errorf("%s: expected a route", tc.kind)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: route = %+v, want %+v", tc.kind, got, tc.want)
		}
	}
}

func TestRouteForUnknownKind(t *testing.T) {
	if _, ok := RouteFor(protocol.Notification{Kind: "poke"}); ok {
		t.Error("unknown notification kind should not resolve to a route")
	}
}
