// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

// Package auth implements the PrimeHub login channels and the account model
// behind them.
//
// A visitor authenticates through one of three independent channels: the
// Telegram Login Widget (HMAC-signed payload), X OAuth2 with PKCE, or
// email+password. Each channel produces a verified Identity which the
// AccountResolver maps to exactly one User row, creating or linking as
// needed. The SessionService then persists a session snapshot before any
// cookie referencing it is written.
//
// Every secret-bearing comparison in this package (password keys, Telegram
// signatures, OAuth state, reset and session tokens) is constant time.
package auth
