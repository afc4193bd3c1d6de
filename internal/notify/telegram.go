// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

// Package notify delivers password reset links to users.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/pnptv/hubauth/internal/auth"
)

// botAPI is the subset of tgbotapi.BotAPI the notifier needs.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends password reset links as bot direct messages to
// users who have a linked Telegram account.
type TelegramNotifier struct {
	api     botAPI
	logger  *slog.Logger
	backoff func() retry.Backoff
}

// NewTelegramNotifier authorizes the bot with the given token.
// Authorization performs a getMe call, so a bad token fails at startup
// rather than on first delivery.
func NewTelegramNotifier(token string, logger *slog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, oops.Code("NOTIFY_BOT_AUTH_FAILED").Wrap(err)
	}

	logger.Info("telegram notifier authorized", "bot", api.Self.UserName)

	return newTelegramNotifier(api, logger), nil
}

// ValidateBot checks the bot token with a getMe call without building a
// notifier, so a mistyped token surfaces at startup even when reset
// delivery through the bot is disabled.
func ValidateBot(token string, logger *slog.Logger) error {
	return validateBot(token, tgbotapi.APIEndpoint, logger)
}

func validateBot(token, endpoint string, logger *slog.Logger) error {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return oops.Code("NOTIFY_BOT_AUTH_FAILED").Wrap(err)
	}
	logger.Info("telegram bot verified", "bot", api.Self.UserName)
	return nil
}

func newTelegramNotifier(api botAPI, logger *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		api:    api,
		logger: logger,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
		},
	}
}

// SendPasswordReset delivers the reset link to the user's Telegram chat.
// Telegram chat IDs for widget logins equal the user ID, so the linked
// telegram_id doubles as the DM target. Transient send failures are
// retried a few times with backoff.
func (n *TelegramNotifier) SendPasswordReset(ctx context.Context, user *auth.User, resetURL string) error {
	if user.TelegramID == nil {
		return oops.Code("NOTIFY_NO_CHANNEL").
			With("user_id", user.ID.String()).
			Errorf("user has no linked telegram account")
	}

	chatID, err := auth.ParseTelegramID(*user.TelegramID)
	if err != nil {
		return oops.Code("NOTIFY_NO_CHANNEL").Wrap(err)
	}

	text := fmt.Sprintf(
		"Hi %s, a password reset was requested for your account.\n\n"+
			"Reset it here (the link expires in 1 hour):\n%s\n\n"+
			"If you did not request this, you can ignore this message.",
		user.FirstName, resetURL)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	err = retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		if _, sendErr := n.api.Send(msg); sendErr != nil {
			n.logger.DebugContext(ctx, "reset message send failed, retrying",
				"chat_id", chatID, "error", sendErr)
			return retry.RetryableError(sendErr)
		}
		return nil
	})
	if err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("chat_id", chatID).Wrap(err)
	}

	n.logger.InfoContext(ctx, "password reset delivered", "chat_id", chatID)
	return nil
}

var _ auth.Notifier = (*TelegramNotifier)(nil)
