// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pnptv/hubauth/internal/auth"
)

// PasswordResetRepository implements auth.PasswordResetRepository using
// PostgreSQL.
type PasswordResetRepository struct {
	pool db
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(pool db) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

// Replace marks every unused token for the user as used and inserts the new
// token within one transaction, so at most one token is ever valid per user.
func (r *PasswordResetRepository) Replace(ctx context.Context, token *auth.PasswordResetToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("RESET_REPLACE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		UPDATE password_reset_tokens SET used = TRUE
		WHERE user_id = $1 AND used = FALSE
	`, token.UserID.String())
	if err != nil {
		return oops.Code("RESET_REPLACE_FAILED").
			With("operation", "invalidate prior tokens").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("RESET_REPLACE_FAILED").
			With("operation", "insert token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("RESET_REPLACE_FAILED").
			With("operation", "commit").
			Wrap(err)
	}
	return nil
}

// GetUnusedByTokenHash retrieves an unused token by hash. Used tokens are
// never returned, so a consumed token looks absent.
func (r *PasswordResetRepository) GetUnusedByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordResetToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1 AND used = FALSE
	`, tokenHash)

	token, err := r.scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_FAILED").Wrap(err)
	}
	return token, nil
}

// MarkUsed flags a token as consumed.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE password_reset_tokens SET used = TRUE WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("RESET_MARK_USED_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes all expired tokens and returns the count.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanToken scans a single row into a PasswordResetToken.
func (r *PasswordResetRepository) scanToken(row pgx.Row) (*auth.PasswordResetToken, error) {
	var (
		idStr     string
		userIDStr string
		tokenHash string
		expiresAt time.Time
		used      bool
		createdAt time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &tokenHash, &expiresAt, &used, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", idStr).Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}

	return &auth.PasswordResetToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		Used:      used,
		CreatedAt: createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
