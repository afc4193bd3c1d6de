// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnptv/hubauth/pkg/errutil"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestNewPublicID(t *testing.T) {
	id := ulid.Make()
	publicID := NewPublicID(id)

	assert.True(t, strings.HasPrefix(publicID, PublicIDPrefix))
	assert.Equal(t, strings.ToLower(id.String()), strings.TrimPrefix(publicID, PublicIDPrefix))
}

func TestUser_HasPasswordChannel(t *testing.T) {
	u := newTestUser("ada@example.com", "salted:hash")
	assert.True(t, u.HasPasswordChannel())

	u = newTestUser("ada@example.com", "")
	assert.False(t, u.HasPasswordChannel())

	u = newTestUser("", "salted:hash")
	assert.False(t, u.HasPasswordChannel(), "a password without an email is unreachable")

	u = newTestUser("ada@example.com", "salted:hash")
	empty := ""
	u.PasswordHash = &empty
	assert.False(t, u.HasPasswordChannel())
}

func TestValidateNewPassword(t *testing.T) {
	require.NoError(t, ValidateNewPassword("12345678"))

	err := ValidateNewPassword("1234567")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_PASSWORD_TOO_SHORT")
}
