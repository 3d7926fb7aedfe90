package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process session store used by tests and local
// development without Redis.
type MemoryStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]memorySession
}

type memorySession struct {
	sess      Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore(secret string, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		secret:   []byte(secret),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]memorySession),
	}
}

// Issue stores a new session and returns its signed token.
func (s *MemoryStore) Issue(_ context.Context, sess Session) (string, error) {
	if sess.IssuedAt.IsZero() {
		sess.IssuedAt = s.now()
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = memorySession{sess: sess, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return signToken(id, s.secret), nil
}

// Resolve verifies the token, loads the session, and slides its expiry.
func (s *MemoryStore) Resolve(_ context.Context, token string) (Session, error) {
	id, err := verifyToken(token, s.secret)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.sessions, id)
		return Session{}, ErrNotFound
	}
	entry.expiresAt = s.now().Add(s.ttl)
	s.sessions[id] = entry
	return entry.sess, nil
}

// Update rewrites an existing session in place, keeping its token.
func (s *MemoryStore) Update(_ context.Context, token string, sess Session) error {
	id, err := verifyToken(token, s.secret)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[id] = memorySession{sess: sess, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

// Revoke removes the session backing a token.
func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	id, err := verifyToken(token, s.secret)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}
