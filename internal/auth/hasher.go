// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

// Package auth provides identity verification and account resolution for PrimeHub.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. The encoded form is "saltHex:keyHex", which existing
// user rows already carry, so the parameters are fixed rather than embedded.
const (
	scryptN       = 32768
	scryptR       = 8
	scryptP       = 1
	scryptSaltLen = 16 // salt length in bytes
	scryptKeyLen  = 64 // derived key length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted scrypt hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)
}

// ScryptHasher implements PasswordHasher using scrypt.
type ScryptHasher struct{}

// NewScryptHasher creates a new ScryptHasher.
func NewScryptHasher() *ScryptHasher {
	return &ScryptHasher{}
}

// Hash produces a salted scrypt hash of the password, encoded as "saltHex:keyHex".
func (h *ScryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify checks if the password matches the encoded hash.
func (h *ScryptHasher) Verify(password, encodedHash string) (bool, error) {
	salt, expectedKey, err := parseEncodedHash(encodedHash)
	if err != nil {
		return false, err
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(expectedKey))
	if err != nil {
		return false, oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}

	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}

// parseEncodedHash splits a "saltHex:keyHex" hash into its raw components.
func parseEncodedHash(encodedHash string) (salt, key []byte, err error) {
	parts := strings.Split(encodedHash, ":")
	if len(parts) != 2 {
		return nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	salt, err = hex.DecodeString(parts[0])
	if err != nil {
		return nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(salt) == 0 {
		return nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("empty salt")
	}

	key, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 {
		return nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("empty derived key")
	}

	return salt, key, nil
}
