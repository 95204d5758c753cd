package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/analystproxy/analystproxy/internal/conversation"
)

const (
	loadQuery = `
SELECT conversation_id, title, created_at, updated_at, messages
FROM conversation_snapshot
ORDER BY updated_at DESC, conversation_id`

	deleteQuery = `DELETE FROM conversation_snapshot`

	insertQuery = `
INSERT INTO conversation_snapshot (conversation_id, title, created_at, updated_at, messages)
VALUES ($1, $2, $3, $4, $5::jsonb)`
)

// Snapshotter keeps one row per conversation in conversation_snapshot. Each
// Save replaces the table contents in a single transaction.
type Snapshotter struct {
	db *sql.DB
}

var _ conversation.Snapshotter = (*Snapshotter)(nil)

func New(db *sql.DB) *Snapshotter {
	return &Snapshotter{db: db}
}

func (s *Snapshotter) Load(ctx context.Context) ([]conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, loadQuery)
	if err != nil {
		return nil, fmt.Errorf("query conversation snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]conversation.Conversation, 0)
	for rows.Next() {
		var (
			item     conversation.Conversation
			messages []byte
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.CreatedAt, &item.UpdatedAt, &messages); err != nil {
			return nil, fmt.Errorf("scan conversation snapshot: %w", err)
		}
		if err := json.Unmarshal(messages, &item.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of conversation %q: %w", item.ID, err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		item.UpdatedAt = item.UpdatedAt.UTC()
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation snapshot: %w", err)
	}
	return out, nil
}

func (s *Snapshotter) Save(ctx context.Context, conversations []conversation.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteQuery); err != nil {
		return fmt.Errorf("clear conversation snapshot: %w", err)
	}
	for _, item := range conversations {
		messages := item.Messages
		if messages == nil {
			messages = []conversation.Message{}
		}
		encoded, err := json.Marshal(messages)
		if err != nil {
			return fmt.Errorf("encode messages of conversation %q: %w", item.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insertQuery,
			item.ID, item.Title, item.CreatedAt.UTC(), item.UpdatedAt.UTC(), string(encoded),
		); err != nil {
			return fmt.Errorf("insert conversation %q: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Snapshotter) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping snapshot db: %w", err)
	}
	return nil
}
