// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified when no account matches the email so the
// response time does not reveal whether the account exists. It can never
// match a real password.
//
//nolint:gosec // G101: intentionally fake hash for timing-attack prevention, not a credential.
const dummyPasswordHash = "00000000000000000000000000000000:" +
	"0000000000000000000000000000000000000000000000000000000000000000" +
	"0000000000000000000000000000000000000000000000000000000000000000"

// CredentialService handles the email+password channel.
type CredentialService struct {
	users    UserRepository
	resolver *AccountResolver
	hasher   PasswordHasher
}

// NewCredentialService creates a new CredentialService.
func NewCredentialService(users UserRepository, resolver *AccountResolver, hasher PasswordHasher) *CredentialService {
	return &CredentialService{users: users, resolver: resolver, hasher: hasher}
}

// Register creates an account for a new email. Emails are compared
// case-insensitively and stored lowercased; a duplicate is a conflict.
func (s *CredentialService) Register(ctx context.Context, email, password, firstName, lastName string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, oops.Code("VALIDATION_FAILED").Errorf("a valid email is required")
	}
	if firstName == "" {
		return nil, oops.Code("VALIDATION_FAILED").Errorf("first name is required")
	}
	if err := ValidateNewPassword(password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, oops.Code("ACCOUNT_CONFLICT").Errorf("email already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "GetByEmail").
			Wrap(err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "Hash").
			Wrap(err)
	}

	user, _, err := s.resolver.Resolve(ctx, Identity{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: passwordHash,
	}, nil)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates an email+password pair. The failure reason (no
// account, no password channel, wrong password) is encoded for logging but
// the same generic code reaches the caller for unknown accounts and bad
// passwords.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, oops.Code("VALIDATION_FAILED").Errorf("email and password are required")
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	exists := false
	if lookupErr == nil {
		exists = true
		if user.HasPasswordChannel() {
			targetHash = *user.PasswordHash
		}
	} else if !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "GetByEmail").
			Wrap(lookupErr)
	}

	// Always run the KDF so response time stays flat across the branches.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "Verify").
			Wrap(verifyErr)
	}

	if !exists {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	}
	if !user.HasPasswordChannel() {
		return nil, oops.Code("AUTH_NO_PASSWORD_CHANNEL").
			Errorf("account has no password login")
	}
	if !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	}

	return user, nil
}
