// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pnptv/hubauth/internal/auth"
)

// db is the subset of pgxpool.Pool the repositories use. pgxmock satisfies
// it in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const userColumns = `id, public_id, first_name, last_name, username, email,
	       password_hash, telegram_id, x_handle, photo_url, bio, role,
	       subscription_status, accepted_terms, language, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool db
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool db) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, public_id, first_name, last_name, username, email,
			password_hash, telegram_id, x_handle, photo_url, bio, role,
			subscription_status, accepted_terms, language, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		user.ID.String(),
		user.PublicID,
		user.FirstName,
		user.LastName,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.TelegramID,
		user.XHandle,
		user.PhotoURL,
		user.Bio,
		user.Role,
		user.SubscriptionStatus,
		user.AcceptedTerms,
		user.Language,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE_CHANNEL").
				With("public_id", user.PublicID).
				Wrap(auth.ErrDuplicateChannel)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("public_id", user.PublicID).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by internal id.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").Wrap(err)
	}
	return user, nil
}

// GetByTelegramID retrieves a user by telegram channel id.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE telegram_id = $1
	`, telegramID)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("telegram_id", telegramID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_TELEGRAM_FAILED").Wrap(err)
	}
	return user, nil
}

// GetByXHandle retrieves a user by X handle (case-insensitive).
func (r *UserRepository) GetByXHandle(ctx context.Context, handle string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(x_handle) = LOWER($1)
	`, handle)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("x_handle", handle).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_X_HANDLE_FAILED").Wrap(err)
	}
	return user, nil
}

// RefreshProfile updates only the display fields a login channel may refresh.
func (r *UserRepository) RefreshProfile(ctx context.Context, id ulid.ULID, patch auth.ProfilePatch) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET first_name = $2, last_name = $3, username = $4,
		       photo_url = $5, updated_at = $6
		WHERE id = $1
	`, id.String(), patch.FirstName, patch.LastName, patch.Username, patch.PhotoURL, time.Now())
	if err != nil {
		return oops.Code("USER_REFRESH_PROFILE_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// LinkTelegram attaches a telegram id to an existing user.
func (r *UserRepository) LinkTelegram(ctx context.Context, id ulid.ULID, telegramID string) error {
	return r.linkChannel(ctx, id, "telegram_id", telegramID)
}

// LinkXHandle attaches an X handle to an existing user.
func (r *UserRepository) LinkXHandle(ctx context.Context, id ulid.ULID, handle string) error {
	return r.linkChannel(ctx, id, "x_handle", handle)
}

func (r *UserRepository) linkChannel(ctx context.Context, id ulid.ULID, column, value string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE users SET `+column+` = $2, updated_at = $3 WHERE id = $1`,
		id.String(), value, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE_CHANNEL").
				With("id", id.String()).
				With("channel", column).
				Wrap(auth.ErrDuplicateChannel)
		}
		return oops.Code("USER_LINK_CHANNEL_FAILED").
			With("id", id.String()).
			With("channel", column).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword updates only the password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetAcceptedTerms marks the terms flag for a user.
func (r *UserRepository) SetAcceptedTerms(ctx context.Context, id ulid.ULID, accepted bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET accepted_terms = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), accepted, time.Now())
	if err != nil {
		return oops.Code("USER_SET_TERMS_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *UserRepository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr        string
		publicID     string
		firstName    string
		lastName     string
		username     string
		email        *string
		passwordHash *string
		telegramID   *string
		xHandle      *string
		photoURL     string
		bio          string
		role         string
		subStatus    string
		terms        bool
		language     string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&idStr,
		&publicID,
		&firstName,
		&lastName,
		&username,
		&email,
		&passwordHash,
		&telegramID,
		&xHandle,
		&photoURL,
		&bio,
		&role,
		&subStatus,
		&terms,
		&language,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:                 id,
		PublicID:           publicID,
		FirstName:          firstName,
		LastName:           lastName,
		Username:           username,
		Email:              email,
		PasswordHash:       passwordHash,
		TelegramID:         telegramID,
		XHandle:            xHandle,
		PhotoURL:           photoURL,
		Bio:                bio,
		Role:               role,
		SubscriptionStatus: subStatus,
		AcceptedTerms:      terms,
		Language:           language,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}

// isUniqueViolation reports whether the error is a unique-constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
