// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/orchat/internal/model"
)

// ErrConversationNotFound indicates the requested conversation does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// DefaultMaxConversations is the retention limit enforced after each save.
const DefaultMaxConversations = 100

// schema holds the conversation table. The full conversation document is
// stored as JSON in the data column; the remaining columns exist so that
// listing and pruning never need to parse message bodies.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    model         TEXT NOT NULL,
    created_at    INTEGER NOT NULL, -- UnixNano
    updated_at    INTEGER NOT NULL, -- UnixNano
    message_count INTEGER NOT NULL,
    preview       TEXT NOT NULL,
    data          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
`

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// Store persists conversations in a local SQLite database.
type Store struct {
	db *sql.DB

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int
}

// Open opens (creating if needed) the conversation store at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		db:               db,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// OpenDefault opens the store at ~/.orchat/conversations.db.
func OpenDefault() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(homeDir, ".orchat", "conversations.db"))
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a conversation, inserting or replacing by ID, and
// returns the ID. The conversation's UpdatedAt is refreshed.
func (s *Store) Save(ctx context.Context, conv *model.Conversation) (string, error) {
	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, created_at, updated_at, message_count, preview, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			preview = excluded.preview,
			data = excluded.data`,
		conv.ID,
		conv.GetTitle(),
		conv.Model,
		conv.CreatedAt.UnixNano(),
		conv.UpdatedAt.UnixNano(),
		len(conv.Messages),
		conv.Preview(),
		string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save conversation: %w", err)
	}

	if s.MaxConversations > 0 {
		s.enforceLimit(ctx)
	}

	return conv.ID, nil
}

// enforceLimit removes the oldest conversations beyond the retention limit.
func (s *Store) enforceLimit(ctx context.Context) {
	// Best effort; a failed prune never fails the save that triggered it.
	s.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)`, s.MaxConversations)
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a conversation by ID.
func (s *Store) Load(ctx context.Context, id string) (*model.Conversation, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM conversations WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}

	return &conv, nil
}

// LoadByIndex loads a conversation by list position (0 = most recent).
func (s *Store) LoadByIndex(ctx context.Context, index int) (*model.Conversation, error) {
	if index < 0 {
		return nil, ErrConversationNotFound
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM conversations
		ORDER BY updated_at DESC
		LIMIT 1 OFFSET ?`, index).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	return s.Load(ctx, id)
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns metadata for all saved conversations, most recent first.
func (s *Store) List(ctx context.Context) ([]ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, model, created_at, updated_at, message_count, preview
		FROM conversations
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	return scanMetas(rows)
}

// Search returns metadata for conversations whose title, preview, or
// stored content contains the query, most recent first.
func (s *Store) Search(ctx context.Context, query string) ([]ConversationMeta, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, model, created_at, updated_at, message_count, preview
		FROM conversations
		WHERE title LIKE ? OR preview LIKE ? OR data LIKE ?
		ORDER BY updated_at DESC`, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search conversations: %w", err)
	}
	defer rows.Close()

	return scanMetas(rows)
}

func scanMetas(rows *sql.Rows) ([]ConversationMeta, error) {
	metas := []ConversationMeta{}
	for rows.Next() {
		var m ConversationMeta
		var createdAt, updatedAt int64
		if err := rows.Scan(&m.ID, &m.Title, &m.Model, &createdAt, &updatedAt, &m.MessageCount, &m.Preview); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(0, createdAt)
		m.UpdatedAt = time.Unix(0, updatedAt)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Count returns the number of saved conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n)
	return n, err
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Clear removes all saved conversations.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM conversations")
	return err
}
