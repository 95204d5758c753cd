package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/analystproxy/analystproxy/internal/config"
	"github.com/analystproxy/analystproxy/internal/conversation"
)

type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// Snapshotter stores the conversations as one JSON value under a key.
type Snapshotter struct {
	client client
	key    string
}

var _ conversation.Snapshotter = (*Snapshotter)(nil)

func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func New(c client, key string) (*Snapshotter, error) {
	if c == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		return nil, fmt.Errorf("snapshot redis key is required")
	}
	return &Snapshotter{client: c, key: key}, nil
}

func (s *Snapshotter) Load(ctx context.Context) ([]conversation.Conversation, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot key %q: %w", s.key, err)
	}
	var conversations []conversation.Conversation
	if err := json.Unmarshal(raw, &conversations); err != nil {
		return nil, fmt.Errorf("decode snapshot key %q: %w", s.key, err)
	}
	return conversations, nil
}

func (s *Snapshotter) Save(ctx context.Context, conversations []conversation.Conversation) error {
	if conversations == nil {
		conversations = []conversation.Conversation{}
	}
	raw, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot key %q: %w", s.key, err)
	}
	return nil
}

func (s *Snapshotter) Check(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
