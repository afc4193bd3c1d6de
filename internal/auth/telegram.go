// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// TelegramAuthMaxAge is the maximum accepted age of a login payload.
// https://core.telegram.org/widgets/login#checking-authorization
const TelegramAuthMaxAge = 86400 * time.Second

// TelegramLogin holds the fields the Telegram Login Widget attaches to a
// callback. All values arrive as strings in the query or JSON body; Extra
// keeps unknown fields so the check string covers everything Telegram signed.
type TelegramLogin struct {
	ID        string
	FirstName string
	LastName  string
	Username  string
	PhotoURL  string
	AuthDate  string
	Hash      string
	Extra     map[string]string
}

// fields returns the named key/value pairs Telegram signed, excluding hash
// and any empty optional field (Telegram omits absent fields entirely).
func (l TelegramLogin) fields() map[string]string {
	out := map[string]string{}
	for k, v := range l.Extra {
		if k != "hash" && v != "" {
			out[k] = v
		}
	}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("id", l.ID)
	put("first_name", l.FirstName)
	put("last_name", l.LastName)
	put("username", l.Username)
	put("photo_url", l.PhotoURL)
	put("auth_date", l.AuthDate)
	return out
}

// CheckString builds the canonical string Telegram signs: all fields except
// hash, sorted by name, joined as "key=value" lines.
func (l TelegramLogin) CheckString() string {
	fields := l.fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	return strings.Join(pairs, "\n")
}

// ParseTelegramID parses a stored telegram identifier into the numeric
// form the Bot API expects for chat targets.
func ParseTelegramID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, oops.Code("AUTH_BAD_TELEGRAM_ID").With("id", id).Wrap(err)
	}
	return n, nil
}

// TelegramVerifier validates Telegram Login Widget payloads against the bot
// secret.
type TelegramVerifier struct {
	secretKey []byte
}

// NewTelegramVerifier creates a verifier for the given bot token.
// The signing key is SHA256(botToken) per the widget protocol.
func NewTelegramVerifier(botToken string) *TelegramVerifier {
	key := sha256.Sum256([]byte(botToken))
	return &TelegramVerifier{secretKey: key[:]}
}

// Verify reports whether the payload carries a valid bot signature and is
// fresh. A missing hash or unparsable auth_date is a rejection. The hash
// comparison is constant time.
func (v *TelegramVerifier) Verify(login TelegramLogin, now time.Time) bool {
	if login.Hash == "" {
		return false
	}

	authDate, err := strconv.ParseInt(login.AuthDate, 10, 64)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secretKey)
	mac.Write([]byte(login.CheckString()))
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(login.Hash)) {
		return false
	}

	// Freshness applies even to valid signatures.
	return now.Sub(time.Unix(authDate, 0)) <= TelegramAuthMaxAge
}
