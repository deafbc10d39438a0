// Package store persists session snapshots so conversations survive a
// server restart. Two drivers: an in-memory map for single-node use and
// Redis for anything shared.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

var (
	ErrInvalidConfig = errors.New("invalid store configuration")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrNotFound      = errors.New("session not found")
)

// Store saves and loads conversation snapshots keyed by session ID.
type Store interface {
	// Save upserts a snapshot.
	Save(ctx context.Context, sess *chat.Session) error

	// Get loads a snapshot. Returns ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (*chat.Session, error)

	// Delete removes a snapshot; deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// List returns every stored snapshot, in no particular order.
	List(ctx context.Context) ([]chat.Session, error)

	// Close releases any underlying resources.
	Close() error
}

// Option configures a store at construction time.
type Option func(*config)

type config struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// WithRedisClient supplies the client the redis driver requires.
func WithRedisClient(client *redis.Client) Option {
	return func(c *config) { c.redisClient = client }
}

// WithTTL bounds how long an idle session snapshot is kept. Only the
// redis driver honors it.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) { c.ttl = ttl }
}

// New builds a store for the named driver: "memory" or "redis".
func New(driver string, opts ...Option) (Store, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case "memory":
		return newMemoryStore(), nil
	case "redis":
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := cfg.ttl
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &redisStore{client: cfg.redisClient, ttl: ttl}, nil
	default:
		return nil, ErrUnknownDriver
	}
}
