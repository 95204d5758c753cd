package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/analystproxy/analystproxy/internal/conversation"
	"github.com/analystproxy/analystproxy/internal/storage"
)

type parquetConversation struct {
	ConversationID  string `parquet:"conversation_id"`
	Title           string `parquet:"title"`
	CreatedAtUnixNs int64  `parquet:"created_at_unix_ns"`
	UpdatedAtUnixNs int64  `parquet:"updated_at_unix_ns"`
	MessageCount    int64  `parquet:"message_count"`
	MessagesJSON    string `parquet:"messages_json"`
}

// Snapshotter writes the conversations as a single parquet object, one row
// per conversation.
type Snapshotter struct {
	store storage.ObjectStore
	key   string
}

var _ conversation.Snapshotter = (*Snapshotter)(nil)

func New(store storage.ObjectStore, key string) (*Snapshotter, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if key == "" {
		return nil, fmt.Errorf("snapshot object key is required")
	}
	return &Snapshotter{store: store, key: key}, nil
}

func (s *Snapshotter) Load(ctx context.Context) ([]conversation.Conversation, error) {
	reader, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot object: %w", err)
	}
	return DecodeParquet(data)
}

func (s *Snapshotter) Save(ctx context.Context, conversations []conversation.Conversation) error {
	data, err := EncodeParquet(conversations)
	if err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, s.key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	}); err != nil {
		return err
	}
	return nil
}

func (s *Snapshotter) Check(ctx context.Context) error {
	return s.store.Check(ctx)
}

func EncodeParquet(conversations []conversation.Conversation) ([]byte, error) {
	rows := make([]parquetConversation, 0, len(conversations))
	for _, item := range conversations {
		messages := item.Messages
		if messages == nil {
			messages = []conversation.Message{}
		}
		encoded, err := json.Marshal(messages)
		if err != nil {
			return nil, fmt.Errorf("encode messages of conversation %q: %w", item.ID, err)
		}
		rows = append(rows, parquetConversation{
			ConversationID:  item.ID,
			Title:           item.Title,
			CreatedAtUnixNs: item.CreatedAt.UnixNano(),
			UpdatedAtUnixNs: item.UpdatedAt.UnixNano(),
			MessageCount:    int64(len(messages)),
			MessagesJSON:    string(encoded),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetConversation](buf)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeParquet(data []byte) ([]conversation.Conversation, error) {
	reader := parquet.NewGenericReader[parquetConversation](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]parquetConversation, reader.NumRows())
	if len(rows) > 0 {
		count, err := reader.Read(rows)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		rows = rows[:count]
	}

	out := make([]conversation.Conversation, 0, len(rows))
	for _, row := range rows {
		item := conversation.Conversation{
			ID:        row.ConversationID,
			Title:     row.Title,
			CreatedAt: time.Unix(0, row.CreatedAtUnixNs).UTC(),
			UpdatedAt: time.Unix(0, row.UpdatedAtUnixNs).UTC(),
		}
		if err := json.Unmarshal([]byte(row.MessagesJSON), &item.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of conversation %q: %w", row.ConversationID, err)
		}
		out = append(out, item)
	}
	return out, nil
}
