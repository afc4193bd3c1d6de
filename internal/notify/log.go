// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/pnptv/hubauth/internal/auth"
	"github.com/pnptv/hubauth/internal/logging"
)

// LogNotifier writes reset links to the log instead of delivering them.
// Used when no bot token is configured, typically in development.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, user *auth.User, resetURL string) error {
	n.logger.InfoContext(ctx, "password reset link issued",
		"user_id", user.ID.String(),
		logging.Redacted("reset_url", resetURL),
	)
	return nil
}

var _ auth.Notifier = (*LogNotifier)(nil)
