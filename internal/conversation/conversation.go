package conversation

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("conversation not found")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const titleLimit = 30

type ContentBlock struct {
	Type        string   `json:"type"`
	Text        string   `json:"text,omitempty"`
	Statement   string   `json:"statement,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Message is immutable once appended. Metadata values are shared between
// copies and must not be mutated.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Blocks         []ContentBlock `json:"blocks,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	Timestamp      time.Time      `json:"timestamp"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	AppendUserMessage(conversationID, text string) (string, Message, error)
	AppendAssistantMessage(conversationID, content string, blocks []ContentBlock, metadata map[string]any) (Message, error)
	Get(conversationID string) (Conversation, error)
	List() []Conversation
	Delete(conversationID string) error
}

// Snapshotter persists the whole store. Load returns no conversations and no
// error when nothing has been saved yet.
type Snapshotter interface {
	Load(ctx context.Context) ([]Conversation, error)
	Save(ctx context.Context, conversations []Conversation) error
}

// Title derives a conversation title from its first user message.
func Title(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "…"
}

func (c Conversation) clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, message := range c.Messages {
		out.Messages[i] = message.clone()
	}
	return out
}

func (m Message) clone() Message {
	out := m
	if m.Blocks != nil {
		out.Blocks = make([]ContentBlock, len(m.Blocks))
		for i, block := range m.Blocks {
			block.Suggestions = append([]string(nil), block.Suggestions...)
			out.Blocks[i] = block
		}
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for key, value := range m.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}
