package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pnptv/hubauth/internal/auth"
	authpg "github.com/pnptv/hubauth/internal/auth/postgres"
	"github.com/pnptv/hubauth/internal/config"
	"github.com/pnptv/hubauth/internal/httpapi"
	"github.com/pnptv/hubauth/internal/logging"
	"github.com/pnptv/hubauth/internal/notify"
	"github.com/pnptv/hubauth/internal/observability"
	"github.com/pnptv/hubauth/internal/store"
)

// newServeCmd creates the serve subcommand with all flags configured.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP server",
		Long: `Start the HTTP server that handles the /auth endpoints: Telegram and
X logins, email+password registration, sessions, and password resets.
Pending database migrations are applied before the server starts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd)
		},
	}

	// Flags override the config file and environment. Names mirror the
	// config keys so the three layers stay aligned.
	cmd.Flags().String("server.addr", "", "HTTP listen address")
	cmd.Flags().String("server.observability_addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log.format", "", "log format (json or text)")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")

	return cmd
}

// runServe starts the auth server and blocks until shutdown.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	logging.SetDefault("hubauth", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	logger.Info("starting hubauth",
		"addr", cfg.Server.Addr,
		"base_url", cfg.Server.BaseURL,
		"telegram_signup", cfg.Telegram.AllowSignup,
		"x_configured", cfg.X.ClientID != "",
	)

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := applyMigrations(cfg.Database.URL, logger); err != nil {
		return err
	}

	// Repositories and services.
	users := authpg.NewUserRepository(pool)
	sessions := authpg.NewSessionRepository(pool)
	resets := authpg.NewPasswordResetRepository(pool)

	resolver := auth.NewAccountResolver(users)
	hasher := auth.NewScryptHasher()
	sessionSvc := auth.NewSessionService(sessions).
		WithLifetimes(cfg.Session.Expiry, cfg.Session.RememberExpiry)
	credsSvc := auth.NewCredentialService(users, resolver, hasher)

	var notifier auth.Notifier
	if cfg.Telegram.NotifyEnabled {
		tn, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, logger)
		if err != nil {
			return fmt.Errorf("failed to authorize telegram notifier: %w", err)
		}
		notifier = tn
	} else {
		if cfg.Telegram.BotToken != "" {
			if err := notify.ValidateBot(cfg.Telegram.BotToken, logger); err != nil {
				return fmt.Errorf("failed to verify telegram bot identity: %w", err)
			}
		}
		notifier = notify.NewLogNotifier(logger)
	}
	resetSvc := auth.NewPasswordResetService(users, resets, hasher, notifier, cfg.Server.BaseURL)

	xOAuth := auth.NewXOAuthExchanger(auth.XOAuthConfig{
		ClientID:     cfg.X.ClientID,
		ClientSecret: cfg.X.ClientSecret,
		RedirectURI:  cfg.X.RedirectURI,
		Scopes:       cfg.X.Scopes,
	})

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Server.ObservabilityAddr != "" {
		obsServer = observability.NewServer(cfg.Server.ObservabilityAddr, store.ReadinessCheck(pool))
		metrics = obsServer.Metrics()
		if _, err := obsServer.Start(); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	authServer := httpapi.NewServer(cfg, logger, httpapi.Deps{
		Verifier: auth.NewTelegramVerifier(cfg.Telegram.BotToken),
		XOAuth:   xOAuth,
		Creds:    credsSvc,
		Resolver: resolver,
		Sessions: sessionSvc,
		Resets:   resetSvc,
		Users:    users,
		Metrics:  metrics,
	})

	errCh, err := authServer.Start()
	if err != nil {
		stopObservability(obsServer, cfg, logger)
		return fmt.Errorf("failed to start auth server: %w", err)
	}

	cmd.Println("hubauth started on " + authServer.Addr())

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case serveErr := <-errCh:
		if serveErr != nil {
			stopObservability(obsServer, cfg, logger)
			return fmt.Errorf("auth server failed: %w", serveErr)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := authServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping auth server", "error", err)
	}
	stopObservability(obsServer, cfg, logger)

	logger.Info("shutdown complete")
	return nil
}

// applyMigrations brings the schema up to date before serving traffic.
func applyMigrations(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to list pending migrations: %w", err)
	}
	if len(pending) == 0 {
		logger.Info("database schema up to date")
		return nil
	}

	logger.Info("applying migrations", "pending", len(pending))
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}

func stopObservability(obsServer *observability.Server, cfg *config.Config, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stopCancel()
	if err := obsServer.Stop(stopCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}
