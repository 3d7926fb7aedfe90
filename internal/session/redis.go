package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisConfig configures the Redis-backed session store.
type RedisConfig struct {
	Secret    string
	TTL       time.Duration
	Namespace string
}

// RedisStore keeps session state in Redis, addressed by a random id that
// is only ever handed to clients in signed form.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	secret    []byte
	ttl       time.Duration
	namespace string
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "orgboard"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		secret:    []byte(cfg.Secret),
		ttl:       ttl,
		namespace: namespace,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Issue stores a new session and returns its signed token.
func (s *RedisStore) Issue(ctx context.Context, sess Session) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("session store is not initialized")
	}
	if sess.IssuedAt.IsZero() {
		sess.IssuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	id := uuid.NewString()
	if err := s.client.Set(ctx, s.sessionKey(id), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return signToken(id, s.secret), nil
}

// Resolve verifies the token, loads the session, and slides its expiry.
func (s *RedisStore) Resolve(ctx context.Context, token string) (Session, error) {
	if s.client == nil {
		return Session{}, fmt.Errorf("session store is not initialized")
	}
	id, err := verifyToken(token, s.secret)
	if err != nil {
		return Session{}, err
	}
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if err := s.client.Expire(ctx, s.sessionKey(id), s.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("refresh session ttl: %w", err)
	}
	return sess, nil
}

// Update rewrites an existing session in place, keeping its token.
func (s *RedisStore) Update(ctx context.Context, token string, sess Session) error {
	if s.client == nil {
		return fmt.Errorf("session store is not initialized")
	}
	id, err := verifyToken(token, s.secret)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Revoke deletes the session backing a token. Unknown sessions are not an
// error so sign-out is idempotent.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if s.client == nil {
		return fmt.Errorf("session store is not initialized")
	}
	id, err := verifyToken(token, s.secret)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) sessionKey(id string) string {
	return s.namespace + ":session:" + id
}
