// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/pnptv/hubauth/pkg/errutil"
)

// Client-facing error messages by error code. Codes not listed map to a
// generic message, so internal detail never leaks to the client.
var errorMessages = map[string]string{
	"VALIDATION_FAILED":        "invalid request",
	"AUTH_PASSWORD_TOO_SHORT":  "password is too short",
	"AUTH_INVALID_CREDENTIALS": "invalid email or password",
	"AUTH_TELEGRAM_REJECTED":   "telegram authorization rejected",
	"AUTH_NO_PASSWORD_CHANNEL": "invalid email or password",
	"AUTH_SIGNUP_DISABLED":     "sign-up is disabled",
	"ACCOUNT_CONFLICT":         "account already linked",
	"RESET_TOKEN_INVALID":      "reset token is invalid",
	"RESET_TOKEN_EXPIRED":      "reset token has expired",
}

// statusForCode maps error codes to HTTP statuses. Unlisted codes are
// internal failures.
func statusForCode(code string) int {
	switch code {
	case "VALIDATION_FAILED", "AUTH_PASSWORD_TOO_SHORT",
		"RESET_TOKEN_INVALID", "RESET_TOKEN_EXPIRED":
		return http.StatusBadRequest
	case "AUTH_INVALID_CREDENTIALS", "AUTH_TELEGRAM_REJECTED",
		"AUTH_NO_PASSWORD_CHANNEL", "AUTH_SIGNUP_DISABLED",
		"SESSION_INVALID", "SESSION_EXPIRED":
		return http.StatusUnauthorized
	case "ACCOUNT_CONFLICT":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorCode extracts the oops error code, or "" for plain errors.
func errorCode(err error) string {
	var oopsErr oops.OopsError
	if errors.As(err, &oopsErr) {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect mid-write
	json.NewEncoder(w).Encode(v)
}

// writeError renders an error as a JSON body with the mapped status.
// Server-side failures are logged with full detail; the response carries
// only the sanitized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCode(err)
	status := statusForCode(code)

	switch {
	case status >= http.StatusInternalServerError:
		errutil.LogError(slog.Default(), r.Method+" "+r.URL.Path+" failed", err)
	case status == http.StatusUnauthorized:
		// Rejected credentials and signatures are worth a trace for abuse
		// investigation even though the response stays generic.
		slog.WarnContext(r.Context(), "authentication rejected",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}

	msg, ok := errorMessages[code]
	if !ok {
		msg = "internal error"
	}

	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

// decodeJSON reads a JSON request body into dst with a size cap.
func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return oops.Code("VALIDATION_FAILED").Wrap(err)
	}
	return nil
}
