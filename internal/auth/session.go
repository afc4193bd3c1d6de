// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes    = 32                  // 32 bytes = 64 hex chars
	SessionDefaultExpiry = 24 * time.Hour      // default session lifetime
	SessionRememberMe    = 30 * 24 * time.Hour // "remember me" lifetime
)

// SessionUser is the snapshot of user fields a session carries. It is never
// a source of truth; it is always re-derivable from the User row.
type SessionUser struct {
	ID                 ulid.ULID `json:"id"`
	PublicID           string    `json:"public_id"`
	Username           string    `json:"username"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Role               string    `json:"role"`
	SubscriptionStatus string    `json:"subscription_status"`
	AcceptedTerms      bool      `json:"accepted_terms"`
	Language           string    `json:"language"`
}

// SnapshotUser builds the session snapshot from a user row.
func SnapshotUser(u *User) *SessionUser {
	return &SessionUser{
		ID:                 u.ID,
		PublicID:           u.PublicID,
		Username:           u.Username,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Role:               u.Role,
		SubscriptionStatus: u.SubscriptionStatus,
		AcceptedTerms:      u.AcceptedTerms,
		Language:           u.Language,
	}
}

// OAuthHandshake is the short-lived state+verifier pair generated when an
// X login starts and consumed exactly once at callback.
type OAuthHandshake struct {
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier"`
}

// SessionData is the typed content of a session record. Exactly the known
// uses have fields; nothing else can be attached.
type SessionData struct {
	User       *SessionUser    `json:"user,omitempty"`
	XHandshake *OAuthHandshake `json:"x_handshake,omitempty"`
}

// Session is a server-side session referenced by a client-held cookie token.
type Session struct {
	ID         ulid.ULID
	TokenHash  string
	Data       SessionData
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// NewSession creates a validated Session instance.
func NewSession(tokenHash string, data SessionData, expiresAt time.Time) (*Session, error) {
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	now := time.Now()
	return &Session{
		ID:         ulid.Make(),
		TokenHash:  tokenHash,
		Data:       data,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		LastSeenAt: now,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token goes to
// the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifySessionToken checks if the plaintext token matches the stored hash
// using a constant-time comparison.
func VerifySessionToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashSessionToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// UpdateData replaces the session's typed data.
	UpdateData(ctx context.Context, id ulid.ULID, data SessionData) error

	// UpdateLastSeen updates the LastSeenAt timestamp.
	UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error

	// Delete removes a session by id.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes expired sessions and returns the count.
	DeleteExpired(ctx context.Context) (int64, error)
}
