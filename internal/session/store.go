package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// UserSessionsPrefix is the Redis key prefix for the per-user set of
	// active session IDs (a user may be connected from several devices).
	UserSessionsPrefix = "user_sessions:"

	// SessionTTL is the time-to-live for session keys in Redis. Activity on
	// the connection refreshes it.
	SessionTTL = 1 * time.Hour

	// Status constants for the session state machine.
	StatusPending    = "pending"    // connected, identify not yet received
	StatusIdentified = "identified" // bound to a user
)

// Session represents a connection's session state stored in Redis.
type Session struct {
	ID         string `redis:"id"`
	Status     string `redis:"status"`    // pending | identified
	UserID     string `redis:"user_id"`   // empty until identified
	UserName   string `redis:"user_name"` // display name for typing signals
	Server     string `redis:"server"`    // which gateway instance
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages session state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this gateway instance
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// NewStoreWithClient creates a session store on an existing Redis client.
// Used by tests and by services that share one client across stores.
func NewStoreWithClient(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Create stores a new pending session in Redis with a 1h TTL.
func (s *Store) Create(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	session := map[string]interface{}{
		"id":          sessionID,
		"status":      StatusPending,
		"user_id":     "",
		"user_name":   "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, session)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var session Session
	err := s.client.HGetAll(ctx, key).Scan(&session)
	if err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, nil // not found
	}
	return &session, nil
}

// Identify binds the session to a user and records it in the user's session
// set. Re-identifying an already-bound session with a different user first
// removes the old binding.
func (s *Store) Identify(ctx context.Context, sessionID, userID, userName string) error {
	prev, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if prev == nil {
		return fmt.Errorf("session: %s not found", sessionID)
	}

	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	if prev.UserID != "" && prev.UserID != userID {
		pipe.SRem(ctx, UserSessionsPrefix+prev.UserID, sessionID)
	}
	pipe.HSet(ctx, key,
		"status", StatusIdentified,
		"user_id", userID,
		"user_name", userName,
		"last_active", time.Now().Unix(),
	)
	pipe.Expire(ctx, key, SessionTTL)
	pipe.SAdd(ctx, UserSessionsPrefix+userID, sessionID)
	pipe.Expire(ctx, UserSessionsPrefix+userID, SessionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// UserSessions returns the active session IDs bound to a user, across all
// gateway instances.
func (s *Store) UserSessions(ctx context.Context, userID string) ([]string, error) {
	return s.client.SMembers(ctx, UserSessionsPrefix+userID).Result()
}

// Touch updates last_active and refreshes the session TTL.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a session from Redis, including its entry in the owning
// user's session set.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	prev, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	if prev != nil && prev.UserID != "" {
		pipe.SRem(ctx, UserSessionsPrefix+prev.UserID, sessionID)
	}
	pipe.Del(ctx, SessionPrefix+sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
