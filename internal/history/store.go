// Package history provides PostgreSQL-backed storage for chat message
// history. Messages are append-only and immutable; within a conversation
// they are totally ordered by (created_at, id), which is also the index
// order so history reads are sequential.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/platebook/chat/internal/protocol"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultHistoryLimit is the number of messages returned for a room's
// messages_loaded snapshot when the caller does not specify a limit.
const DefaultHistoryLimit = 50

// Store manages message history in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection, and applies any
// pending schema migrations from the embedded migration files.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStore creates a history store on an existing database handle without
// running migrations. Used by tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// runMigrations applies embedded SQL migrations. Already-applied migrations
// are a no-op.
func runMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("history: migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("history: run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Printf("history: migrations applied version=%d dirty=%v", version, dirty)
	return nil
}

// Append persists a message. The recipe payload, if present, is stored as
// JSONB alongside the raw content.
func (s *Store) Append(ctx context.Context, m protocol.Message) error {
	var recipeJSON []byte
	if m.Recipe != nil {
		var err error
		recipeJSON, err = json.Marshal(m.Recipe)
		if err != nil {
			return fmt.Errorf("history: marshal recipe: %w", err)
		}
	}

	const query = `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, content, message_type, recipe, client_msg_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.ConversationID,
		m.SenderID,
		m.SenderName,
		m.Content,
		m.MessageType,
		recipeJSON,
		m.ClientMsgID,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns the most recent `limit` messages of a conversation in
// ascending (created_at, id) order, ready to render oldest-first.
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]protocol.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	// Fetch the newest rows, then flip them into chronological order.
	const query = `
		SELECT id, conversation_id, sender_id, sender_name, content, message_type, recipe, client_msg_id, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into ascending order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Since returns all messages of a conversation strictly after the given
// (createdAt, id) cursor in ascending order. Used by reconnect-and-resync to
// fill gaps without refetching the whole history.
func (s *Store) Since(ctx context.Context, conversationID string, createdAt int64, id string) ([]protocol.Message, error) {
	const query = `
		SELECT id, conversation_id, sender_id, sender_name, content, message_type, recipe, client_msg_id, created_at
		FROM messages
		WHERE conversation_id = $1
		  AND (created_at > $2 OR (created_at = $2 AND id > $3))
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID, createdAt, id)
	if err != nil {
		return nil, fmt.Errorf("history: query since: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// scanMessages drains a result set into protocol messages.
func scanMessages(rows *sql.Rows) ([]protocol.Message, error) {
	var msgs []protocol.Message
	for rows.Next() {
		var (
			m          protocol.Message
			recipeJSON []byte
		)
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.SenderName,
			&m.Content,
			&m.MessageType,
			&recipeJSON,
			&m.ClientMsgID,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if len(recipeJSON) > 0 {
			var rs protocol.RecipeShare
			if err := json.Unmarshal(recipeJSON, &rs); err == nil {
				m.Recipe = &rs
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return msgs, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
