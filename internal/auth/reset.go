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

// Reset token configuration.
const (
	ResetTokenBytes  = 32        // 32 bytes = 64 hex chars
	ResetTokenExpiry = time.Hour // 1 hour expiry
)

// PasswordResetToken is a single-use recovery credential. Only the hash of
// the token is stored; a used token is indistinguishable from an absent one.
type PasswordResetToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// IsExpired returns true if the token has expired.
func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// NewPasswordResetToken creates a validated reset record for a user.
func NewPasswordResetToken(userID ulid.ULID, tokenHash string, expiresAt time.Time) (*PasswordResetToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user id cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}

	return &PasswordResetToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token goes to
// the user out of band; the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = hashResetToken(token)

	return token, hash, nil
}

// VerifyResetToken checks a plaintext token against a stored hash in
// constant time.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := hashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// hashResetToken computes the SHA256 hash of a token.
func hashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// PasswordResetRepository manages reset token persistence.
type PasswordResetRepository interface {
	// Replace atomically marks every unused token for the user as used and
	// inserts the new token, so two concurrent issues never leave two
	// simultaneously valid tokens.
	Replace(ctx context.Context, token *PasswordResetToken) error

	// GetUnusedByTokenHash retrieves an unused token by hash. Used tokens
	// are never returned.
	GetUnusedByTokenHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error)

	// MarkUsed flags a token as consumed.
	MarkUsed(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes expired tokens and returns the count.
	DeleteExpired(ctx context.Context) (int64, error)
}
