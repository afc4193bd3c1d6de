// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnptv/hubauth/internal/auth"
	"github.com/pnptv/hubauth/pkg/errutil"
)

func sampleResetToken(t *testing.T) *auth.PasswordResetToken {
	t.Helper()
	token, err := auth.NewPasswordResetToken(ulid.Make(), "resethash123", time.Now().Add(auth.ResetTokenExpiry))
	require.NoError(t, err)
	return token
}

func TestPasswordResetRepository_Replace(t *testing.T) {
	mock := newMockPool(t)
	token := sampleResetToken(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens SET used = TRUE\s+WHERE user_id = \$1 AND used = FALSE`).
		WithArgs(token.UserID.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`INSERT INTO password_reset_tokens`).
		WithArgs(token.ID.String(), token.UserID.String(), token.TokenHash,
			token.ExpiresAt, token.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewPasswordResetRepository(mock)
	require.NoError(t, repo.Replace(t.Context(), token))
	assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
}

func TestPasswordResetRepository_Replace_InsertFails(t *testing.T) {
	mock := newMockPool(t)
	token := sampleResetToken(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens SET used = TRUE`).
		WithArgs(token.UserID.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO password_reset_tokens`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	repo := NewPasswordResetRepository(mock)
	err := repo.Replace(t.Context(), token)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "RESET_REPLACE_FAILED")
	assert.NoError(t, mock.ExpectationsWereMet(), "transaction should roll back")
}

func TestPasswordResetRepository_Replace_BeginFails(t *testing.T) {
	mock := newMockPool(t)
	token := sampleResetToken(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	repo := NewPasswordResetRepository(mock)
	err := repo.Replace(t.Context(), token)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "RESET_REPLACE_FAILED")
}

func TestPasswordResetRepository_GetUnusedByTokenHash(t *testing.T) {
	mock := newMockPool(t)
	want := sampleResetToken(t)

	rows := pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "used", "created_at"}).
		AddRow(want.ID.String(), want.UserID.String(), want.TokenHash,
			want.ExpiresAt, false, want.CreatedAt)

	mock.ExpectQuery(`SELECT .+ FROM password_reset_tokens\s+WHERE token_hash = \$1 AND used = FALSE`).
		WithArgs("resethash123").
		WillReturnRows(rows)

	repo := NewPasswordResetRepository(mock)
	got, err := repo.GetUnusedByTokenHash(t.Context(), "resethash123")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.UserID, got.UserID)
	assert.False(t, got.Used)
}

func TestPasswordResetRepository_GetUnusedByTokenHash_NotFound(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectQuery(`SELECT .+ FROM password_reset_tokens\s+WHERE token_hash = \$1 AND used = FALSE`).
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	repo := NewPasswordResetRepository(mock)
	_, err := repo.GetUnusedByTokenHash(t.Context(), "unknown")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "RESET_NOT_FOUND")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestPasswordResetRepository_MarkUsed(t *testing.T) {
	mock := newMockPool(t)
	id := ulid.Make()

	mock.ExpectExec(`UPDATE password_reset_tokens SET used = TRUE WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewPasswordResetRepository(mock)
	require.NoError(t, repo.MarkUsed(t.Context(), id))
}

func TestPasswordResetRepository_MarkUsed_NotFound(t *testing.T) {
	mock := newMockPool(t)
	id := ulid.Make()

	mock.ExpectExec(`UPDATE password_reset_tokens SET used = TRUE WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPasswordResetRepository(mock)
	err := repo.MarkUsed(t.Context(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestPasswordResetRepository_DeleteExpired(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectExec(`DELETE FROM password_reset_tokens WHERE expires_at < NOW\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	repo := NewPasswordResetRepository(mock)
	n, err := repo.DeleteExpired(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
