// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role values assigned to users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Subscription tiers.
const (
	TierFree  = "free"
	TierPrime = "prime"
)

// DefaultLanguage is used when a login channel supplies no language hint.
const DefaultLanguage = "en"

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// PublicIDPrefix prefixes the opaque id shown outside the system.
const PublicIDPrefix = "pnp-"

// User is the canonical account record. At most one row may claim a given
// email, telegram id, or X handle; a user may hold any subset of the three
// channels but ends onboarding with at least one.
type User struct {
	ID                 ulid.ULID
	PublicID           string
	FirstName          string
	LastName           string
	Username           string
	Email              *string
	PasswordHash       *string
	TelegramID         *string
	XHandle            *string
	PhotoURL           string
	Bio                string
	Role               string
	SubscriptionStatus string
	AcceptedTerms      bool
	Language           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewPublicID derives the externally visible id for a fresh user.
func NewPublicID(id ulid.ULID) string {
	return PublicIDPrefix + strings.ToLower(id.String())
}

// HasPasswordChannel reports whether the user can log in with email+password.
func (u *User) HasPasswordChannel() bool {
	return u.Email != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// NormalizeEmail canonicalizes an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateNewPassword enforces the minimum password policy.
func ValidateNewPassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_PASSWORD_TOO_SHORT").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// ProfilePatch carries the non-authoritative profile fields a login channel
// may refresh on an existing user. Fields the user edits themselves (bio,
// interests) are never part of a patch.
type ProfilePatch struct {
	FirstName string
	LastName  string
	Username  string
	PhotoURL  string
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. A unique violation on email, telegram id,
	// or X handle surfaces as ErrDuplicateChannel.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by internal id.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByTelegramID retrieves a user by telegram channel id.
	GetByTelegramID(ctx context.Context, telegramID string) (*User, error)

	// GetByXHandle retrieves a user by X handle.
	GetByXHandle(ctx context.Context, handle string) (*User, error)

	// RefreshProfile updates only the patch fields for a user.
	RefreshProfile(ctx context.Context, id ulid.ULID, patch ProfilePatch) error

	// LinkTelegram attaches a telegram id to an existing user.
	LinkTelegram(ctx context.Context, id ulid.ULID, telegramID string) error

	// LinkXHandle attaches an X handle to an existing user.
	LinkXHandle(ctx context.Context, id ulid.ULID, handle string) error

	// UpdatePassword updates only the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// SetAcceptedTerms marks the terms flag for a user.
	SetAcceptedTerms(ctx context.Context, id ulid.ULID, accepted bool) error
}

// ErrDuplicateChannel is returned when a channel identifier is already
// claimed by another user.
var ErrDuplicateChannel = errors.New("channel identifier already in use")
