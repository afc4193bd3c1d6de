// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is a channel identifier that has already been verified by its
// channel (Telegram signature checked, X code exchanged, password matched).
// Exactly one of TelegramID, XHandle, Email is set.
type Identity struct {
	TelegramID string
	XHandle    string
	Email      string

	// Profile hints from the channel, applied as non-authoritative data.
	FirstName string
	LastName  string
	Username  string
	PhotoURL  string
	Language  string

	// PasswordHash is set only when Email is, for new account creation.
	PasswordHash string
}

// AccountResolver maps a verified identity to exactly one user: find by
// channel, create when the session is anonymous, or link the channel to the
// session's existing user.
//
// A person who signs in once via Telegram and separately, logged out, via X
// ends up with two user rows. That is deliberate: no fuzzy identity merging
// is attempted.
type AccountResolver struct {
	users UserRepository
}

// NewAccountResolver creates a new AccountResolver.
func NewAccountResolver(users UserRepository) *AccountResolver {
	return &AccountResolver{users: users}
}

// Resolve returns the user for the identity and whether it was just created.
// current is the session's user, or nil for an anonymous session.
func (r *AccountResolver) Resolve(ctx context.Context, id Identity, current *SessionUser) (*User, bool, error) {
	existing, err := r.findByChannel(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, oops.Code("RESOLVE_FAILED").
			With("operation", "find by channel").
			Wrap(err)
	}

	if existing != nil {
		r.refreshProfile(ctx, existing, id)
		return existing, false, nil
	}

	if current == nil {
		user, err := r.create(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return user, true, nil
	}

	user, err := r.link(ctx, current.ID, id)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func (r *AccountResolver) findByChannel(ctx context.Context, id Identity) (*User, error) {
	switch {
	case id.TelegramID != "":
		return r.users.GetByTelegramID(ctx, id.TelegramID)
	case id.XHandle != "":
		return r.users.GetByXHandle(ctx, id.XHandle)
	case id.Email != "":
		return r.users.GetByEmail(ctx, NormalizeEmail(id.Email))
	default:
		return nil, oops.Code("RESOLVE_FAILED").Errorf("identity has no channel identifier")
	}
}

// refreshProfile applies display fields the channel reported. User-edited
// fields (bio, interests) are never touched; a failed refresh never fails
// the login.
func (r *AccountResolver) refreshProfile(ctx context.Context, user *User, id Identity) {
	patch := ProfilePatch{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		PhotoURL:  user.PhotoURL,
	}
	changed := false
	if id.FirstName != "" && id.FirstName != user.FirstName {
		patch.FirstName = id.FirstName
		changed = true
	}
	if id.LastName != "" && id.LastName != user.LastName {
		patch.LastName = id.LastName
		changed = true
	}
	if id.Username != "" && id.Username != user.Username {
		patch.Username = id.Username
		changed = true
	}
	if id.PhotoURL != "" && id.PhotoURL != user.PhotoURL {
		patch.PhotoURL = id.PhotoURL
		changed = true
	}
	if !changed {
		return
	}

	if err := r.users.RefreshProfile(ctx, user.ID, patch); err != nil {
		return //nolint:nilerr // Best effort, login proceeds on the stored profile
	}
	user.FirstName = patch.FirstName
	user.LastName = patch.LastName
	user.Username = patch.Username
	user.PhotoURL = patch.PhotoURL
}

func (r *AccountResolver) create(ctx context.Context, id Identity) (*User, error) {
	now := time.Now()
	userID := ulid.Make()

	language := id.Language
	if language == "" {
		language = DefaultLanguage
	}

	user := &User{
		ID:                 userID,
		PublicID:           NewPublicID(userID),
		FirstName:          id.FirstName,
		LastName:           id.LastName,
		Username:           id.Username,
		PhotoURL:           id.PhotoURL,
		Role:               RoleUser,
		SubscriptionStatus: TierFree,
		Language:           language,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	switch {
	case id.TelegramID != "":
		tg := id.TelegramID
		user.TelegramID = &tg
	case id.XHandle != "":
		handle := id.XHandle
		user.XHandle = &handle
		if user.Username == "" {
			user.Username = handle
		}
	case id.Email != "":
		email := NormalizeEmail(id.Email)
		user.Email = &email
		if id.PasswordHash != "" {
			hash := id.PasswordHash
			user.PasswordHash = &hash
		}
	}

	if err := r.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateChannel) {
			return nil, oops.Code("ACCOUNT_CONFLICT").
				Errorf("channel identifier already registered")
		}
		return nil, oops.Code("RESOLVE_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	return user, nil
}

func (r *AccountResolver) link(ctx context.Context, currentID ulid.ULID, id Identity) (*User, error) {
	var err error
	switch {
	case id.TelegramID != "":
		err = r.users.LinkTelegram(ctx, currentID, id.TelegramID)
	case id.XHandle != "":
		err = r.users.LinkXHandle(ctx, currentID, id.XHandle)
	default:
		err = oops.Code("RESOLVE_FAILED").Errorf("cannot link this channel type")
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateChannel) {
			return nil, oops.Code("ACCOUNT_CONFLICT").
				Errorf("channel identifier already registered")
		}
		return nil, oops.Code("RESOLVE_FAILED").
			With("operation", "link channel").
			With("user_id", currentID.String()).
			Wrap(err)
	}

	user, err := r.users.GetByID(ctx, currentID)
	if err != nil {
		return nil, oops.Code("RESOLVE_FAILED").
			With("operation", "reload user").
			With("user_id", currentID.String()).
			Wrap(err)
	}
	return user, nil
}
