package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps sessions as JSON values with a TTL, so expired
// sessions disappear on their own. The in-memory store is fine for a
// single process; this is the production store.
type RedisSessionStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisSessionStore(client *redis.Client, namespace string) *RedisSessionStore {
	return &RedisSessionStore{client: client, namespace: namespace}
}

func (s *RedisSessionStore) key(token string) string {
	return fmt.Sprintf("%s:nfc-session:%s", s.namespace, token)
}

func (s *RedisSessionStore) Create(ctx context.Context, token string, ttl time.Duration) (*Session, error) {
	now := time.Now()
	session := &Session{
		Status:    StatusWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	b, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), b, ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (*Session, error) {
	b, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(b, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, token string, session *Session) error {
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	err = s.client.Set(ctx, s.key(token), b, redis.KeepTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
