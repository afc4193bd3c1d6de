// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pnptv/hubauth/internal/auth"
)

// In-memory repositories backing the handler tests.

type memUserRepo struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[ulid.ULID]*auth.User{}}
}

func (r *memUserRepo) clone(u *auth.User) *auth.User {
	c := *u
	return &c
}

func (r *memUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if user.Email != nil && u.Email != nil && *u.Email == *user.Email {
			return auth.ErrDuplicateChannel
		}
		if user.TelegramID != nil && u.TelegramID != nil && *u.TelegramID == *user.TelegramID {
			return auth.ErrDuplicateChannel
		}
		if user.XHandle != nil && u.XHandle != nil && *u.XHandle == *user.XHandle {
			return auth.ErrDuplicateChannel
		}
	}
	r.users[user.ID] = r.clone(user)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r.clone(u), nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email != nil && *u.Email == email {
			return r.clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) GetByTelegramID(_ context.Context, telegramID string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			return r.clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) GetByXHandle(_ context.Context, handle string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.XHandle != nil && *u.XHandle == handle {
			return r.clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) RefreshProfile(_ context.Context, id ulid.ULID, patch auth.ProfilePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if patch.FirstName != "" {
		u.FirstName = patch.FirstName
	}
	if patch.LastName != "" {
		u.LastName = patch.LastName
	}
	if patch.Username != "" {
		u.Username = patch.Username
	}
	if patch.PhotoURL != "" {
		u.PhotoURL = patch.PhotoURL
	}
	return nil
}

func (r *memUserRepo) LinkTelegram(_ context.Context, id ulid.ULID, telegramID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, u := range r.users {
		if uid != id && u.TelegramID != nil && *u.TelegramID == telegramID {
			return auth.ErrDuplicateChannel
		}
	}
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.TelegramID = &telegramID
	return nil
}

func (r *memUserRepo) LinkXHandle(_ context.Context, id ulid.ULID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, u := range r.users {
		if uid != id && u.XHandle != nil && *u.XHandle == handle {
			return auth.ErrDuplicateChannel
		}
	}
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.XHandle = &handle
	return nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = &passwordHash
	return nil
}

func (r *memUserRepo) SetAcceptedTerms(_ context.Context, id ulid.ULID, accepted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.AcceptedTerms = accepted
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[ulid.ULID]*auth.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[ulid.ULID]*auth.Session{}}
}

func (r *memSessionRepo) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *session
	r.sessions[session.ID] = &c
	return nil
}

func (r *memSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash {
			c := *s
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memSessionRepo) UpdateData(_ context.Context, id ulid.ULID, data auth.SessionData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.Data = data
	return nil
}

func (r *memSessionRepo) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.LastSeenAt = lastSeen
	return nil
}

func (r *memSessionRepo) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.IsExpired() {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type memResetRepo struct {
	mu     sync.Mutex
	tokens map[ulid.ULID]*auth.PasswordResetToken
}

func newMemResetRepo() *memResetRepo {
	return &memResetRepo{tokens: map[ulid.ULID]*auth.PasswordResetToken{}}
}

func (r *memResetRepo) Replace(_ context.Context, token *auth.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == token.UserID && !t.Used {
			t.Used = true
		}
	}
	c := *token
	r.tokens[token.ID] = &c
	return nil
}

func (r *memResetRepo) GetUnusedByTokenHash(_ context.Context, tokenHash string) (*auth.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash && !t.Used {
			c := *t
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memResetRepo) MarkUsed(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return auth.ErrNotFound
	}
	t.Used = true
	return nil
}

func (r *memResetRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.IsExpired() {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// capturingNotifier records reset links instead of delivering them.
type capturingNotifier struct {
	mu   sync.Mutex
	urls []string
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, _ *auth.User, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, resetURL)
	return nil
}

func (n *capturingNotifier) lastURL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.urls) == 0 {
		return ""
	}
	return n.urls[len(n.urls)-1]
}
