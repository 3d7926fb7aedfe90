package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Store errors.
var (
	// ErrInvalidToken covers malformed tokens and signature mismatches.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrNotFound covers expired and revoked sessions.
	ErrNotFound = errors.New("session: not found")
)

// Session is the per-user state carried between requests.
type Session struct {
	UserID       uint      `json:"userId"`
	Login        string    `json:"login"`
	AccessToken  string    `json:"accessToken"`
	Organization string    `json:"organization"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// Store issues, resolves, updates, and revokes signed sessions. Resolving
// a session extends its lifetime by the configured TTL.
type Store interface {
	Issue(ctx context.Context, sess Session) (string, error)
	Resolve(ctx context.Context, token string) (Session, error)
	Update(ctx context.Context, token string, sess Session) error
	Revoke(ctx context.Context, token string) error
}

// signToken binds a session id to the signing secret. The returned token is
// "<id>.<hex hmac-sha256>".
func signToken(id string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id))
	return id + "." + hex.EncodeToString(mac.Sum(nil))
}

// verifyToken checks the token signature and returns the embedded id.
func verifyToken(token string, secret []byte) (string, error) {
	id, signature, ok := strings.Cut(token, ".")
	if !ok || id == "" {
		return "", ErrInvalidToken
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return "", ErrInvalidToken
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id))
	if !hmac.Equal(mac.Sum(nil), want) {
		return "", ErrInvalidToken
	}
	return id, nil
}
