// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// SessionService establishes, resolves, and destroys authenticated sessions.
// Establish persists the session row before handing back the token, so the
// cookie the caller writes always refers to a flushed record.
type SessionService struct {
	sessions    SessionRepository
	defaultTTL  time.Duration
	rememberTTL time.Duration
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionRepository) *SessionService {
	return &SessionService{
		sessions:    sessions,
		defaultTTL:  SessionDefaultExpiry,
		rememberTTL: SessionRememberMe,
	}
}

// WithLifetimes overrides the default and remember-me session lifetimes.
// Non-positive values keep the built-in defaults.
func (s *SessionService) WithLifetimes(standard, remember time.Duration) *SessionService {
	if standard > 0 {
		s.defaultTTL = standard
	}
	if remember > 0 {
		s.rememberTTL = remember
	}
	return s
}

// Establish creates a session for the user and returns it with the plaintext
// token. rememberMe extends the lifetime from the short default to 30 days.
func (s *SessionService) Establish(ctx context.Context, user *User, rememberMe bool) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	ttl := s.defaultTTL
	if rememberMe {
		ttl = s.rememberTTL
	}

	session, err := NewSession(tokenHash, SessionData{User: SnapshotUser(user)}, time.Now().Add(ttl))
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "build session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}

// EstablishAnonymous creates a session with no user, used to bind an OAuth
// handshake to a browser that is not logged in yet.
func (s *SessionService) EstablishAnonymous(ctx context.Context) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(tokenHash, SessionData{}, time.Now().Add(s.defaultTTL))
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}

// Current resolves a session token to the live session, or ErrNotFound when
// the token is unknown or the session has expired.
func (s *SessionService) Current(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrNotFound)
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Wrap(ErrNotFound)
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		return nil, oops.Code("SESSION_EXPIRED").Wrap(ErrNotFound)
	}

	_ = s.sessions.UpdateLastSeen(ctx, session.ID, time.Now()) //nolint:errcheck // Best effort

	return session, nil
}

// Identify replaces the session's user snapshot, keeping other session data.
// Used when an existing (possibly anonymous) session gains a user, or when a
// user's snapshot fields change.
func (s *SessionService) Identify(ctx context.Context, session *Session, user *User) error {
	session.Data.User = SnapshotUser(user)
	if err := s.sessions.UpdateData(ctx, session.ID, session.Data); err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "identify session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// PutHandshake stores an OAuth handshake on the session, replacing any prior
// pending handshake. Only the latest start call is valid.
func (s *SessionService) PutHandshake(ctx context.Context, session *Session, hs OAuthHandshake) error {
	session.Data.XHandshake = &hs
	if err := s.sessions.UpdateData(ctx, session.ID, session.Data); err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "store handshake").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// TakeHandshake removes and returns the pending handshake. The handshake is
// consumed regardless of what the caller does with it, so a state/code pair
// can only be tried once.
func (s *SessionService) TakeHandshake(ctx context.Context, session *Session) (*OAuthHandshake, error) {
	hs := session.Data.XHandshake
	if hs == nil {
		return nil, nil
	}

	session.Data.XHandshake = nil
	if err := s.sessions.UpdateData(ctx, session.ID, session.Data); err != nil {
		return nil, oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "consume handshake").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return hs, nil
}

// Destroy removes the server-side session record.
func (s *SessionService) Destroy(ctx context.Context, session *Session) error {
	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}
