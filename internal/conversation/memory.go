package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/analystproxy/analystproxy/internal/observability"
)

type entry struct {
	mu           sync.Mutex
	conversation Conversation
}

// MemoryStore keeps conversations in process memory. The map lock is only
// held to find or replace entries; appends lock the single conversation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
	newID   func() string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string]*entry{},
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

func (s *MemoryStore) AppendUserMessage(conversationID, text string) (string, Message, error) {
	if strings.TrimSpace(text) == "" {
		return "", Message{}, fmt.Errorf("message text is required")
	}

	e := s.lookup(conversationID)
	if e == nil {
		e = s.create(text)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	message := s.appendLocked(e, RoleUser, text, nil, nil)
	return e.conversation.ID, message.clone(), nil
}

func (s *MemoryStore) AppendAssistantMessage(conversationID, content string, blocks []ContentBlock, metadata map[string]any) (Message, error) {
	e := s.lookup(conversationID)
	if e == nil {
		return Message{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	message := s.appendLocked(e, RoleAssistant, content, blocks, metadata)
	return message.clone(), nil
}

func (s *MemoryStore) Get(conversationID string) (Conversation, error) {
	e := s.lookup(conversationID)
	if e == nil {
		return Conversation{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversation.clone(), nil
}

// List returns every conversation, most recently updated first.
func (s *MemoryStore) List() []Conversation {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Conversation, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.conversation.clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (s *MemoryStore) Delete(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[conversationID]; !ok {
		return ErrNotFound
	}
	delete(s.entries, conversationID)
	observability.SetConversationsActive(len(s.entries))
	return nil
}

// Restore replaces the store contents with conversations from a snapshot.
func (s *MemoryStore) Restore(conversations []Conversation) {
	entries := make(map[string]*entry, len(conversations))
	for _, conversation := range conversations {
		if conversation.ID == "" {
			continue
		}
		entries[conversation.ID] = &entry{conversation: conversation.clone()}
	}
	s.mu.Lock()
	s.entries = entries
	observability.SetConversationsActive(len(entries))
	s.mu.Unlock()
}

// LoadFrom restores the store from a snapshotter.
func (s *MemoryStore) LoadFrom(ctx context.Context, snapshotter Snapshotter) (int, error) {
	conversations, err := snapshotter.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load conversation snapshot: %w", err)
	}
	s.Restore(conversations)
	return len(conversations), nil
}

// SaveTo flushes the store to a snapshotter.
func (s *MemoryStore) SaveTo(ctx context.Context, snapshotter Snapshotter) (int, error) {
	conversations := s.List()
	if err := snapshotter.Save(ctx, conversations); err != nil {
		return 0, fmt.Errorf("save conversation snapshot: %w", err)
	}
	return len(conversations), nil
}

func (s *MemoryStore) lookup(conversationID string) *entry {
	if conversationID == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[conversationID]
}

func (s *MemoryStore) create(firstMessage string) *entry {
	now := s.now()
	e := &entry{conversation: Conversation{
		ID:        s.newID(),
		Title:     Title(firstMessage),
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.mu.Lock()
	s.entries[e.conversation.ID] = e
	observability.SetConversationsActive(len(s.entries))
	s.mu.Unlock()
	return e
}

func (s *MemoryStore) appendLocked(e *entry, role Role, content string, blocks []ContentBlock, metadata map[string]any) Message {
	now := s.now()
	if now.Before(e.conversation.UpdatedAt) {
		now = e.conversation.UpdatedAt
	}
	message := Message{
		ID:             s.newID(),
		ConversationID: e.conversation.ID,
		Role:           role,
		Content:        content,
		Blocks:         blocks,
		Metadata:       metadata,
		Timestamp:      now,
	}
	e.conversation.Messages = append(e.conversation.Messages, message.clone())
	e.conversation.UpdatedAt = now
	return message
}
