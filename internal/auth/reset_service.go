// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Notifier delivers a password-reset link to the account holder out of band.
// Delivery mechanics are not this package's concern.
type Notifier interface {
	SendPasswordReset(ctx context.Context, user *User, resetURL string) error
}

// PasswordResetService issues and consumes single-use reset tokens.
type PasswordResetService struct {
	users    UserRepository
	resets   PasswordResetRepository
	hasher   PasswordHasher
	notifier Notifier
	baseURL  string
}

// NewPasswordResetService creates a new PasswordResetService. baseURL is the
// public origin the reset link is built on.
func NewPasswordResetService(
	users UserRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	notifier Notifier,
	baseURL string,
) *PasswordResetService {
	return &PasswordResetService{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		notifier: notifier,
		baseURL:  baseURL,
	}
}

// Issue starts a reset for the account holding the email. An unknown email
// returns success with no further action, so callers cannot probe which
// accounts exist. Issuing invalidates every prior unused token for the user.
func (s *PasswordResetService) Issue(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_ISSUE_FAILED").
			With("operation", "GetByEmail").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_ISSUE_FAILED").
			With("operation", "GenerateResetToken").
			Wrap(err)
	}

	reset, err := NewPasswordResetToken(user.ID, hash, time.Now().Add(ResetTokenExpiry))
	if err != nil {
		return oops.Code("RESET_ISSUE_FAILED").
			With("operation", "NewPasswordResetToken").
			Wrap(err)
	}

	if err := s.resets.Replace(ctx, reset); err != nil {
		return oops.Code("RESET_ISSUE_FAILED").
			With("operation", "Replace").
			Wrap(err)
	}

	resetURL := s.baseURL + "/reset-password?token=" + token
	if err := s.notifier.SendPasswordReset(ctx, user, resetURL); err != nil {
		// The token is already valid; delivery failure must not reveal
		// anything to the caller.
		slog.Warn("password reset delivery failed",
			"user_id", user.ID.String(),
			"error", err,
		)
	}

	return nil
}

// Consume validates a token and sets the user's new password. A token
// accepted once always fails afterwards; used tokens look absent.
func (s *PasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	if err := ValidateNewPassword(newPassword); err != nil {
		return err
	}
	if token == "" {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token cannot be empty")
	}

	reset, err := s.resets.GetUnusedByTokenHash(ctx, hashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token not found")
		}
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "GetUnusedByTokenHash").
			Wrap(err)
	}

	if reset.IsExpired() {
		return oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token has expired")
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "Hash").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, reset.UserID, passwordHash); err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "UpdatePassword").
			Wrap(err)
	}

	if err := s.resets.MarkUsed(ctx, reset.ID); err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "MarkUsed").
			Wrap(err)
	}

	return nil
}
