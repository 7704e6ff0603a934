// Package unread provides Redis-backed read-state storage: per-conversation
// unread counters per user, conversation last-message metadata, and the
// global notification badge counter. The badge counter is the server-trusted
// total the client recomputes from on login, rather than trusting its own
// running count across disconnects.
package unread

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	UnreadPrefix = "unread:" // unread:<userID> hash: conversationID -> count
	ConvPrefix   = "conv:"   // conv:<conversationID> hash: last_message, updated_at
	BadgePrefix  = "badge:"  // badge:<userID> integer counter

	// ConvMetaTTL bounds how long stale conversation metadata lives without
	// a new message refreshing it.
	ConvMetaTTL = 30 * 24 * time.Hour
)

// touchConvLua updates a conversation's last_message and advances updated_at
// only if the new timestamp is not older than the stored one, keeping
// updated_at monotonically non-decreasing even if events are applied out of
// order.
const touchConvLua = `
local current = tonumber(redis.call('HGET', KEYS[1], 'updated_at') or '0')
local ts = tonumber(ARGV[2])
if ts >= current then
  redis.call('HSET', KEYS[1], 'last_message', ARGV[1], 'updated_at', ARGV[2])
end
redis.call('EXPIRE', KEYS[1], ARGV[3])
return redis.call('HGET', KEYS[1], 'updated_at')
`

// decrBadgeLua decrements the badge counter with a floor of zero.
const decrBadgeLua = `
local v = tonumber(redis.call('GET', KEYS[1]) or '0')
if v > 0 then
  v = v - 1
  redis.call('SET', KEYS[1], v)
end
return v
`

// ConvMeta is the denormalized conversation metadata kept for list
// rendering: the last message preview and the monotonic update timestamp.
type ConvMeta struct {
	LastMessage string
	UpdatedAt   int64 // unix milliseconds
}

// Store manages read-state counters in Redis.
type Store struct {
	rdb       *redis.Client
	touchConv *redis.Script
	decrBadge *redis.Script
}

// NewStore creates a read-state store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:       rdb,
		touchConv: redis.NewScript(touchConvLua),
		decrBadge: redis.NewScript(decrBadgeLua),
	}
}

// IncrementUnread adds one to the user's unread counter for a conversation.
// Called when a message arrives for a conversation the user is not viewing.
func (s *Store) IncrementUnread(ctx context.Context, userID, conversationID string) (int64, error) {
	return s.rdb.HIncrBy(ctx, UnreadPrefix+userID, conversationID, 1).Result()
}

// MarkRead zeroes the user's unread counter for a conversation. Idempotent.
func (s *Store) MarkRead(ctx context.Context, userID, conversationID string) error {
	return s.rdb.HDel(ctx, UnreadPrefix+userID, conversationID).Err()
}

// UnreadCounts returns the user's per-conversation unread counters.
// Conversations with no unread messages are absent from the map.
func (s *Store) UnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, UnreadPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(raw))
	for conv, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		counts[conv] = n
	}
	return counts, nil
}

// TouchConversation records a conversation's latest message preview and
// advances its updated_at timestamp (unix milliseconds). Stale timestamps do
// not move updated_at backwards.
func (s *Store) TouchConversation(ctx context.Context, conversationID, lastMessage string, ts int64) error {
	ttl := int(ConvMetaTTL / time.Second)
	return s.touchConv.Run(ctx, s.rdb,
		[]string{ConvPrefix + conversationID},
		lastMessage, ts, ttl,
	).Err()
}

// ConversationMeta returns the stored metadata for a conversation, or nil if
// none has been recorded.
func (s *Store) ConversationMeta(ctx context.Context, conversationID string) (*ConvMeta, error) {
	raw, err := s.rdb.HGetAll(ctx, ConvPrefix+conversationID).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	updatedAt, _ := strconv.ParseInt(raw["updated_at"], 10, 64)
	return &ConvMeta{
		LastMessage: raw["last_message"],
		UpdatedAt:   updatedAt,
	}, nil
}

// SetParticipants records a conversation's participant user IDs. The
// conversation service writes this on creation and on membership changes;
// the gateway reads it to route unread increments and message notifications.
func (s *Store) SetParticipants(ctx context.Context, conversationID string, userIDs []string) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, ConvPrefix+conversationID, "participants", strings.Join(userIDs, ","))
	pipe.Expire(ctx, ConvPrefix+conversationID, ConvMetaTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Participants returns a conversation's participant user IDs, or an empty
// slice if none are recorded.
func (s *Store) Participants(ctx context.Context, conversationID string) ([]string, error) {
	raw, err := s.rdb.HGet(ctx, ConvPrefix+conversationID, "participants").Result()
	if err == redis.Nil || raw == "" {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return strings.Split(raw, ","), nil
}

// IncrementBadge adds one to the user's global notification badge and
// returns the new total.
func (s *Store) IncrementBadge(ctx context.Context, userID string) (int64, error) {
	return s.rdb.Incr(ctx, BadgePrefix+userID).Result()
}

// DecrementBadge subtracts one from the badge with a floor of zero, as
// happens on an individual mark-as-read. Returns the new total.
func (s *Store) DecrementBadge(ctx context.Context, userID string) (int64, error) {
	return s.decrBadge.Run(ctx, s.rdb, []string{BadgePrefix + userID}).Int64()
}

// ResetBadge zeroes the badge counter (mark-all-read).
func (s *Store) ResetBadge(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, BadgePrefix+userID).Err()
}

// BadgeCount returns the user's current badge total. A missing key counts
// as zero.
func (s *Store) BadgeCount(ctx context.Context, userID string) (int64, error) {
	v, err := s.rdb.Get(ctx, BadgePrefix+userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
