package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/analystproxy/analystproxy/internal/conversation"
)

const formatVersion = 1

type document struct {
	Version       int                         `json:"version"`
	SavedAt       time.Time                   `json:"saved_at"`
	Conversations []conversation.Conversation `json:"conversations"`
}

// Snapshotter stores conversations as one JSON document. Saves write a
// temporary file and rename it over the target.
type Snapshotter struct {
	path string
}

var _ conversation.Snapshotter = (*Snapshotter)(nil)

func New(path string) (*Snapshotter, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot file path is required")
	}
	return &Snapshotter{path: path}, nil
}

func (s *Snapshotter) Load(_ context.Context) ([]conversation.Conversation, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot file: %w", err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}
	return doc.Conversations, nil
}

func (s *Snapshotter) Save(_ context.Context, conversations []conversation.Conversation) error {
	if conversations == nil {
		conversations = []conversation.Conversation{}
	}
	raw, err := json.MarshalIndent(document{
		Version:       formatVersion,
		SavedAt:       time.Now().UTC(),
		Conversations: conversations,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".conversations-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

// Check verifies that the snapshot directory exists.
func (s *Snapshotter) Check(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("stat snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot dir %q is not a directory", filepath.Dir(s.path))
	}
	return nil
}
