// Package redis implements a slot stored under a Redis string key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"classledger/pkg/domain"
)

// Slot stores the payload at key and the time of the last write at key + ":updated_at".
type Slot struct {
	client *redis.Client
	key    string
	nowFn  func() time.Time
}

var _ domain.Slot = (*Slot)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, opts Options) (*Slot, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, key string) *Slot {
	if key == "" {
		key = "classledger"
	}
	return &Slot{client: client, key: key, nowFn: func() time.Time { return time.Now().UTC() }}
}

func (s *Slot) Driver() string { return "redis" }

func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	return b, nil
}

func (s *Slot) Write(ctx context.Context, payload []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, payload, 0)
		pipe.Set(ctx, s.key+":updated_at", s.nowFn().Format(time.RFC3339Nano), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// UpdatedAt returns the time of the last write, or the zero time if none.
func (s *Slot) UpdatedAt(ctx context.Context) (time.Time, error) {
	v, err := s.client.Get(ctx, s.key+":updated_at").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}

// Close closes the client.
func (s *Slot) Close() error { return s.client.Close() }
