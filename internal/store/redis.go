package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CodeCubCA/voice-ai-assistant-Chace-codecub/internal/chat"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func redisKey(id string) string { return "session:" + id }

func (s *redisStore) Save(ctx context.Context, sess *chat.Session) error {
	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	return s.client.Set(ctx, redisKey(sess.ID), val, s.ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	val, err := s.client.Get(ctx, redisKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess chat.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	// reading a session keeps it alive
	_ = s.client.Expire(ctx, redisKey(id), s.ttl).Err()
	return &sess, nil
}

func (s *redisStore) List(ctx context.Context) ([]chat.Session, error) {
	var out []chat.Session
	iter := s.client.Scan(ctx, 0, redisKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			// expired between scan and get
			continue
		}
		if err != nil {
			return nil, err
		}
		var sess chat.Session
		if err := json.Unmarshal([]byte(val), &sess); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Val(), err)
		}
		out = append(out, sess)
	}
	return out, iter.Err()
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKey(id)).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
