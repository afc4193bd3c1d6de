// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package httpapi

import (
	"net/http"
	"time"
)

// writeSessionCookie sets the session cookie. The cookie is HttpOnly and
// SameSite=Lax so it survives the top-level OAuth redirect back from the
// provider but is invisible to scripts.
func writeSessionCookie(w http.ResponseWriter, name, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie immediately.
func clearSessionCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// readSessionToken returns the session token from the request cookie, or ""
// when absent.
func readSessionToken(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
