// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// memUserRepo is an in-memory UserRepository for service tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[ulid.ULID]*User

	createErr error
	getErr    error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[ulid.ULID]*User{}}
}

func cloneUser(u *User) *User {
	c := *u
	return &c
}

func (r *memUserRepo) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.users {
		if user.Email != nil && existing.Email != nil && *existing.Email == *user.Email {
			return ErrDuplicateChannel
		}
		if user.TelegramID != nil && existing.TelegramID != nil && *existing.TelegramID == *user.TelegramID {
			return ErrDuplicateChannel
		}
		if user.XHandle != nil && existing.XHandle != nil &&
			strings.EqualFold(*existing.XHandle, *user.XHandle) {
			return ErrDuplicateChannel
		}
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, u := range r.users {
		if u.Email != nil && *u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) GetByTelegramID(_ context.Context, telegramID string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) GetByXHandle(_ context.Context, handle string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.XHandle != nil && strings.EqualFold(*u.XHandle, handle) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUserRepo) RefreshProfile(_ context.Context, id ulid.ULID, patch ProfilePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FirstName = patch.FirstName
	u.LastName = patch.LastName
	u.Username = patch.Username
	u.PhotoURL = patch.PhotoURL
	return nil
}

func (r *memUserRepo) LinkTelegram(_ context.Context, id ulid.ULID, telegramID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, u := range r.users {
		if uid != id && u.TelegramID != nil && *u.TelegramID == telegramID {
			return ErrDuplicateChannel
		}
	}
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.TelegramID = &telegramID
	return nil
}

func (r *memUserRepo) LinkXHandle(_ context.Context, id ulid.ULID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, u := range r.users {
		if uid != id && u.XHandle != nil && strings.EqualFold(*u.XHandle, handle) {
			return ErrDuplicateChannel
		}
	}
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.XHandle = &handle
	return nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = &passwordHash
	return nil
}

func (r *memUserRepo) SetAcceptedTerms(_ context.Context, id ulid.ULID, accepted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.AcceptedTerms = accepted
	return nil
}

// memSessionRepo is an in-memory SessionRepository for service tests.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[ulid.ULID]*Session

	createErr error
	updateErr error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[ulid.ULID]*Session{}}
}

func cloneSession(s *Session) *Session {
	c := *s
	if s.Data.User != nil {
		u := *s.Data.User
		c.Data.User = &u
	}
	if s.Data.XHandshake != nil {
		hs := *s.Data.XHandshake
		c.Data.XHandshake = &hs
	}
	return &c
}

func (r *memSessionRepo) Create(_ context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *memSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash {
			return cloneSession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memSessionRepo) UpdateData(_ context.Context, id ulid.ULID, data SessionData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Data = data
	return nil
}

func (r *memSessionRepo) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastSeenAt = lastSeen
	return nil
}

func (r *memSessionRepo) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range r.sessions {
		if now.After(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// memResetRepo is an in-memory PasswordResetRepository for service tests.
type memResetRepo struct {
	mu     sync.Mutex
	tokens map[ulid.ULID]*PasswordResetToken

	replaceErr error
}

func newMemResetRepo() *memResetRepo {
	return &memResetRepo{tokens: map[ulid.ULID]*PasswordResetToken{}}
}

func (r *memResetRepo) Replace(_ context.Context, token *PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	for _, t := range r.tokens {
		if t.UserID == token.UserID && !t.Used {
			t.Used = true
		}
	}
	c := *token
	r.tokens[token.ID] = &c
	return nil
}

func (r *memResetRepo) GetUnusedByTokenHash(_ context.Context, tokenHash string) (*PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash && !t.Used {
			c := *t
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memResetRepo) MarkUsed(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return ErrNotFound
	}
	t.Used = true
	return nil
}

func (r *memResetRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for id, t := range r.tokens {
		if now.After(t.ExpiresAt) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// recordingNotifier captures reset URLs and can be made to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, _ *User, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.urls = append(n.urls, resetURL)
	return nil
}

// newTestUser builds a user with an email+password channel for tests.
func newTestUser(email, passwordHash string) *User {
	now := time.Now()
	id := ulid.Make()
	u := &User{
		ID:                 id,
		PublicID:           NewPublicID(id),
		FirstName:          "Ada",
		LastName:           "Lovelace",
		Role:               RoleUser,
		SubscriptionStatus: TierFree,
		Language:           DefaultLanguage,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if email != "" {
		e := NormalizeEmail(email)
		u.Email = &e
	}
	if passwordHash != "" {
		h := passwordHash
		u.PasswordHash = &h
	}
	return u
}
