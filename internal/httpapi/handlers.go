// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/pnptv/hubauth/internal/auth"
	"github.com/pnptv/hubauth/internal/observability"
)

// telegramOAuthBase is where /auth/telegram/start sends the browser. The
// widget flow returns to our callback with the signed login payload in the
// query string.
const telegramOAuthBase = "https://oauth.telegram.org/auth"

// currentSession resolves the request's session cookie, or nil when the
// request carries no valid session.
func (s *Server) currentSession(r *http.Request) *auth.Session {
	token := readSessionToken(r, s.cfg.Session.CookieName)
	if token == "" {
		return nil
	}
	session, err := s.sessions.Current(r.Context(), token)
	if err != nil {
		return nil
	}
	return session
}

// loginSession attaches the user to the request's session. An existing
// session is re-identified in place; otherwise a new session is persisted
// and its cookie written. The session row is flushed before the cookie
// goes out.
func (s *Server) loginSession(w http.ResponseWriter, r *http.Request, user *auth.User, rememberMe bool) (*auth.Session, error) {
	if session := s.currentSession(r); session != nil {
		if err := s.sessions.Identify(r.Context(), session, user); err != nil {
			return nil, err
		}
		return session, nil
	}

	session, token, err := s.sessions.Establish(r.Context(), user, rememberMe)
	if err != nil {
		return nil, err
	}
	writeSessionCookie(w, s.cfg.Session.CookieName, token, session.ExpiresAt, s.cfg.Session.CookieSecure)
	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	return session, nil
}

// recordLogin tracks a login attempt when metrics are wired.
func (s *Server) recordLogin(channel, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(channel, outcome)
	}
}

// redirectLoginError sends the browser back to the login page. Used by the
// redirect-based OAuth flows, where a JSON error would strand the browser.
func (s *Server) redirectLoginError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WarnContext(r.Context(), "oauth login failed",
		"path", r.URL.Path, "error", err)
	http.Redirect(w, r, s.cfg.Server.LoginPath+"?error=auth_failed", http.StatusFound)
}

// userPayload is the user shape returned by login and register responses.
func userPayload(u *auth.User) map[string]any {
	var email string
	if u.Email != nil {
		email = *u.Email
	}
	var xHandle string
	if u.XHandle != nil {
		xHandle = *u.XHandle
	}
	return map[string]any{
		"id":                 u.PublicID,
		"firstName":          u.FirstName,
		"lastName":           u.LastName,
		"username":           u.Username,
		"email":              email,
		"xHandle":            xHandle,
		"photoUrl":           u.PhotoURL,
		"role":               u.Role,
		"subscriptionStatus": u.SubscriptionStatus,
		"acceptedTerms":      u.AcceptedTerms,
		"language":           u.Language,
	}
}

// --- Telegram ---

// telegramLoginFromValues maps widget query/body parameters onto the login
// payload, keeping unrecognized keys so the signature check covers them.
func telegramLoginFromValues(values url.Values) auth.TelegramLogin {
	login := auth.TelegramLogin{Extra: map[string]string{}}
	for key := range values {
		v := values.Get(key)
		switch key {
		case "id":
			login.ID = v
		case "first_name":
			login.FirstName = v
		case "last_name":
			login.LastName = v
		case "username":
			login.Username = v
		case "photo_url":
			login.PhotoURL = v
		case "auth_date":
			login.AuthDate = v
		case "hash":
			login.Hash = v
		default:
			login.Extra[key] = v
		}
	}
	return login
}

// handleTelegramStart redirects the browser into the Telegram OAuth flow.
func (s *Server) handleTelegramStart(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Telegram.BotToken == "" {
		writeError(w, r, oops.Code("TELEGRAM_NOT_CONFIGURED").
			Errorf("telegram login not configured"))
		return
	}

	// The bot id is the numeric prefix of the token.
	botID, _, _ := strings.Cut(s.cfg.Telegram.BotToken, ":")

	query := url.Values{}
	query.Set("bot_id", botID)
	query.Set("origin", s.cfg.Server.BaseURL)
	query.Set("return_to", s.cfg.Server.BaseURL+"/auth/telegram/callback")

	http.Redirect(w, r, telegramOAuthBase+"?"+query.Encode(), http.StatusFound)
}

// telegramLogin verifies the widget payload and resolves it to a user.
// isNew reports whether the account was created by this login.
func (s *Server) telegramLogin(w http.ResponseWriter, r *http.Request, login auth.TelegramLogin) (user *auth.User, isNew bool, err error) {
	if s.verifier == nil || !s.verifier.Verify(login, time.Now()) {
		s.recordLogin(observability.ChannelTelegram, observability.OutcomeRejected)
		return nil, false, oops.Code("AUTH_TELEGRAM_REJECTED").
			Errorf("telegram payload failed verification")
	}

	session := s.currentSession(r)
	var current *auth.SessionUser
	if session != nil {
		current = session.Data.User
	}

	if !s.cfg.Telegram.AllowSignup && current == nil {
		if _, err := s.users.GetByTelegramID(r.Context(), login.ID); err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				s.recordLogin(observability.ChannelTelegram, observability.OutcomeRejected)
				return nil, false, oops.Code("AUTH_SIGNUP_DISABLED").
					Errorf("telegram sign-up is disabled")
			}
			s.recordLogin(observability.ChannelTelegram, observability.OutcomeError)
			return nil, false, err
		}
	}

	user, isNew, err = s.resolver.Resolve(r.Context(), auth.Identity{
		TelegramID: login.ID,
		FirstName:  login.FirstName,
		LastName:   login.LastName,
		Username:   login.Username,
		PhotoURL:   login.PhotoURL,
	}, current)
	if err != nil {
		s.recordLogin(observability.ChannelTelegram, observability.OutcomeError)
		return nil, false, err
	}

	if _, err := s.loginSession(w, r, user, false); err != nil {
		s.recordLogin(observability.ChannelTelegram, observability.OutcomeError)
		return nil, false, err
	}

	s.recordLogin(observability.ChannelTelegram, observability.OutcomeSuccess)
	return user, isNew, nil
}

// handleTelegramCallback completes the redirect flow started by
// /auth/telegram/start.
func (s *Server) handleTelegramCallback(w http.ResponseWriter, r *http.Request) {
	login := telegramLoginFromValues(r.URL.Query())
	if _, _, err := s.telegramLogin(w, r, login); err != nil {
		s.redirectLoginError(w, r, err)
		return
	}
	http.Redirect(w, r, s.cfg.Server.FrontendPath, http.StatusFound)
}

// handleTelegramLogin accepts the widget payload as a JSON body, for pages
// that embed the widget with a javascript callback instead of a redirect.
func (s *Server) handleTelegramLogin(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	values := url.Values{}
	for k, v := range body {
		values.Set(k, v)
	}

	user, isNew, err := s.telegramLogin(w, r, telegramLoginFromValues(values))
	if err != nil {
		// A valid signature for an unknown account when sign-up is closed is
		// not an authentication failure, just an account that does not exist.
		if errorCode(err) == "AUTH_SIGNUP_DISABLED" {
			writeJSON(w, http.StatusOK, map[string]any{
				"authenticated": false,
				"registered":    false,
			})
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"registered":    true,
		"isNew":         isNew,
		"user":          userPayload(user),
	})
}

// --- Email + password ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		FirstName  string `json:"firstName"`
		LastName   string `json:"lastName"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.creds.Register(r.Context(), body.Email, body.Password, body.FirstName, body.LastName)
	if err != nil {
		s.recordLogin(observability.ChannelPassword, observability.OutcomeError)
		writeError(w, r, err)
		return
	}

	if _, err := s.loginSession(w, r, user, body.RememberMe); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordLogin(observability.ChannelPassword, observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          userPayload(user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.creds.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		outcome := observability.OutcomeError
		if statusForCode(errorCode(err)) == http.StatusUnauthorized {
			outcome = observability.OutcomeRejected
		}
		s.recordLogin(observability.ChannelPassword, outcome)
		writeError(w, r, err)
		return
	}

	if _, err := s.loginSession(w, r, user, body.RememberMe); err != nil {
		writeError(w, r, err)
		return
	}

	s.recordLogin(observability.ChannelPassword, observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          userPayload(user),
	})
}

// --- X OAuth ---

// handleXStart binds a fresh handshake to the caller's session and hands
// back the provider URL for the frontend to navigate to.
func (s *Server) handleXStart(w http.ResponseWriter, r *http.Request) {
	session := s.currentSession(r)
	if session == nil {
		var token string
		var err error
		session, token, err = s.sessions.EstablishAnonymous(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSessionCookie(w, s.cfg.Session.CookieName, token, session.ExpiresAt, s.cfg.Session.CookieSecure)
	}

	authURL, hs, err := s.xOAuth.Start()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.sessions.PutHandshake(r.Context(), session, hs); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     authURL,
	})
}

// handleXCallback completes the provider redirect. The stored handshake is
// consumed before the exchange, so a replayed callback finds nothing.
func (s *Server) handleXCallback(w http.ResponseWriter, r *http.Request) {
	session := s.currentSession(r)
	if session == nil {
		s.recordLogin(observability.ChannelX, observability.OutcomeRejected)
		s.redirectLoginError(w, r, oops.Code("AUTH_STATE_MISMATCH").
			Errorf("callback without session"))
		return
	}

	hs, err := s.sessions.TakeHandshake(r.Context(), session)
	if err != nil {
		s.recordLogin(observability.ChannelX, observability.OutcomeError)
		s.redirectLoginError(w, r, err)
		return
	}
	if hs == nil {
		s.recordLogin(observability.ChannelX, observability.OutcomeRejected)
		s.redirectLoginError(w, r, oops.Code("AUTH_STATE_MISMATCH").
			Errorf("no pending handshake"))
		return
	}

	query := r.URL.Query()
	profile, err := s.xOAuth.Exchange(r.Context(), *hs, query.Get("code"), query.Get("state"))
	if err != nil {
		outcome := observability.OutcomeError
		if errorCode(err) == "AUTH_STATE_MISMATCH" {
			outcome = observability.OutcomeRejected
		}
		s.recordLogin(observability.ChannelX, outcome)
		s.redirectLoginError(w, r, err)
		return
	}

	user, _, err := s.resolver.Resolve(r.Context(), auth.Identity{
		XHandle:   profile.Handle,
		FirstName: profile.DisplayName,
		Username:  profile.Handle,
	}, session.Data.User)
	if err != nil {
		s.recordLogin(observability.ChannelX, observability.OutcomeError)
		s.redirectLoginError(w, r, err)
		return
	}

	if _, err := s.loginSession(w, r, user, false); err != nil {
		s.recordLogin(observability.ChannelX, observability.OutcomeError)
		s.redirectLoginError(w, r, err)
		return
	}

	s.recordLogin(observability.ChannelX, observability.OutcomeSuccess)
	http.Redirect(w, r, s.cfg.Server.FrontendPath, http.StatusFound)
}

// --- Session lifecycle ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	session := s.currentSession(r)
	if session == nil || session.Data.User == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	u := session.Data.User
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":                 u.PublicID,
			"firstName":          u.FirstName,
			"lastName":           u.LastName,
			"username":           u.Username,
			"role":               u.Role,
			"subscriptionStatus": u.SubscriptionStatus,
			"acceptedTerms":      u.AcceptedTerms,
			"language":           u.Language,
		},
	})
}

// handleLogout destroys the server-side session and clears the cookie.
// Always succeeds, even without a session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session := s.currentSession(r); session != nil {
		if err := s.sessions.Destroy(r.Context(), session); err != nil {
			s.logger.WarnContext(r.Context(), "session destroy failed", "error", err)
		} else if s.metrics != nil {
			s.metrics.SessionsActive.Dec()
		}
	}

	clearSessionCookie(w, s.cfg.Session.CookieName, s.cfg.Session.CookieSecure)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- Password reset ---

// handleForgotPassword always reports success so responses do not reveal
// which emails have accounts.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if strings.TrimSpace(body.Email) == "" {
		writeError(w, r, oops.Code("VALIDATION_FAILED").Errorf("email is required"))
		return
	}

	if err := s.resets.Issue(r.Context(), body.Email); err != nil {
		s.logger.ErrorContext(r.Context(), "password reset issue failed", "error", err)
	} else if s.metrics != nil {
		s.metrics.ResetIssuedTotal.Inc()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If that email has an account, a reset link is on its way.",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.resets.Consume(r.Context(), body.Token, body.Password); err != nil {
		if s.metrics != nil {
			s.metrics.ResetConsumeTotal.WithLabelValues(observability.OutcomeRejected).Inc()
		}
		writeError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.ResetConsumeTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- Profile ---

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	session := s.currentSession(r)
	if session == nil || session.Data.User == nil {
		writeError(w, r, oops.Code("SESSION_INVALID").Errorf("not authenticated"))
		return
	}

	user, err := s.users.GetByID(r.Context(), session.Data.User.ID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"success": false,
				"error":   "user not found",
			})
			return
		}
		writeError(w, r, err)
		return
	}

	payload := userPayload(user)
	payload["bio"] = user.Bio
	payload["telegramLinked"] = user.TelegramID != nil
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    payload,
	})
}

// handleAcceptTerms flags the current user as having accepted the terms and
// refreshes the session snapshot so /auth/status reflects it immediately.
func (s *Server) handleAcceptTerms(w http.ResponseWriter, r *http.Request) {
	session := s.currentSession(r)
	if session == nil || session.Data.User == nil {
		writeError(w, r, oops.Code("SESSION_INVALID").Errorf("not authenticated"))
		return
	}

	if err := s.users.SetAcceptedTerms(r.Context(), session.Data.User.ID, true); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.users.GetByID(r.Context(), session.Data.User.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.sessions.Identify(r.Context(), session, user); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
