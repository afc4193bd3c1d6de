// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

// Package httpapi exposes the authentication endpoints over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/pnptv/hubauth/internal/auth"
	"github.com/pnptv/hubauth/internal/config"
	"github.com/pnptv/hubauth/internal/observability"
)

// Server serves the /auth endpoints.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	verifier *auth.TelegramVerifier
	xOAuth   *auth.XOAuthExchanger
	creds    *auth.CredentialService
	resolver *auth.AccountResolver
	sessions *auth.SessionService
	resets   *auth.PasswordResetService
	users    auth.UserRepository
	metrics  *observability.Metrics

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// Deps bundles the collaborators the server needs.
type Deps struct {
	Verifier *auth.TelegramVerifier
	XOAuth   *auth.XOAuthExchanger
	Creds    *auth.CredentialService
	Resolver *auth.AccountResolver
	Sessions *auth.SessionService
	Resets   *auth.PasswordResetService
	Users    auth.UserRepository
	Metrics  *observability.Metrics
}

// NewServer creates the auth HTTP server. metrics may be nil in tests.
func NewServer(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		verifier: deps.Verifier,
		xOAuth:   deps.XOAuth,
		creds:    deps.Creds,
		resolver: deps.Resolver,
		sessions: deps.Sessions,
		resets:   deps.Resets,
		users:    deps.Users,
		metrics:  deps.Metrics,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/telegram/start", s.handleTelegramStart)
	mux.HandleFunc("GET /auth/telegram/callback", s.handleTelegramCallback)
	mux.HandleFunc("POST /auth/telegram", s.handleTelegramLogin)

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	mux.HandleFunc("GET /auth/x/start", s.handleXStart)
	mux.HandleFunc("GET /auth/x/callback", s.handleXCallback)

	mux.HandleFunc("GET /auth/status", s.handleStatus)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)

	mux.HandleFunc("GET /auth/profile", s.handleProfile)
	mux.HandleFunc("POST /auth/accept-terms", s.handleAcceptTerms)

	return mux
}

// Start begins serving. Returns an error channel that reports a failed
// Serve and closes on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("auth server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Server.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("auth server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("auth server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_auth_server").Wrap(err)
		}
	}

	s.logger.Info("auth server stopped")
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
