// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// X OAuth2 endpoints.
const (
	XAuthURL  = "https://twitter.com/i/oauth2/authorize"
	XTokenURL = "https://api.twitter.com/2/oauth2/token"
	XUserURL  = "https://api.twitter.com/2/users/me"
)

// PKCE material sizes.
const (
	oauthStateBytes    = 32 // ≥128-bit requirement, URL-safe encoded
	oauthVerifierBytes = 48 // ≥256-bit requirement, base64url unpadded
)

// XOAuthTimeout bounds the two outbound provider calls. Authorization codes
// are single use, so there is no retry: a retry after a provider-side
// success would surface as a duplicate-code failure.
const XOAuthTimeout = 5 * time.Second

// XOAuthConfig configures the X login flow.
type XOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserURL      string
}

// Configured reports whether the provider credentials are present.
func (c XOAuthConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// XProfile is the identity extracted from the provider after a successful
// exchange. Handle is the stable external identifier.
type XProfile struct {
	Handle      string
	DisplayName string
}

// XOAuthExchanger drives the PKCE authorization-code flow against X.
type XOAuthExchanger struct {
	config XOAuthConfig
	client *http.Client
}

// NewXOAuthExchanger creates an exchanger. Endpoint URLs default to the
// public X API when unset.
func NewXOAuthExchanger(config XOAuthConfig) *XOAuthExchanger {
	if config.AuthURL == "" {
		config.AuthURL = XAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = XTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = XUserURL
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{"tweet.read", "users.read"}
	}
	return &XOAuthExchanger{
		config: config,
		client: &http.Client{Timeout: XOAuthTimeout},
	}
}

// Start generates a fresh handshake and the provider authorization URL.
// No network call is made; the caller stores the handshake on the session
// and navigates the browser to the URL.
func (x *XOAuthExchanger) Start() (string, OAuthHandshake, error) {
	if !x.config.Configured() {
		return "", OAuthHandshake{}, oops.Code("OAUTH_NOT_CONFIGURED").
			Errorf("X OAuth client is not configured")
	}

	state, err := randomURLSafe(oauthStateBytes)
	if err != nil {
		return "", OAuthHandshake{}, oops.Code("OAUTH_START_FAILED").
			With("operation", "generate state").
			Wrap(err)
	}
	verifier, err := randomURLSafe(oauthVerifierBytes)
	if err != nil {
		return "", OAuthHandshake{}, oops.Code("OAUTH_START_FAILED").
			With("operation", "generate code verifier").
			Wrap(err)
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", x.config.ClientID)
	query.Set("redirect_uri", x.config.RedirectURI)
	query.Set("scope", strings.Join(x.config.Scopes, " "))
	query.Set("state", state)
	query.Set("code_challenge", ComputeS256Challenge(verifier))
	query.Set("code_challenge_method", "S256")

	authURL, err := url.Parse(x.config.AuthURL)
	if err != nil {
		return "", OAuthHandshake{}, oops.Code("OAUTH_START_FAILED").
			With("operation", "parse auth url").
			Wrap(err)
	}
	authURL.RawQuery = query.Encode()

	return authURL.String(), OAuthHandshake{State: state, CodeVerifier: verifier}, nil
}

// Exchange completes the callback step: it checks the returned state against
// the stored handshake, trades the code for an access token, and fetches the
// external profile. A state mismatch fails closed with no network call.
func (x *XOAuthExchanger) Exchange(ctx context.Context, hs OAuthHandshake, code, state string) (XProfile, error) {
	if hs.State == "" || state == "" ||
		subtle.ConstantTimeCompare([]byte(hs.State), []byte(state)) != 1 {
		return XProfile{}, oops.Code("AUTH_STATE_MISMATCH").
			Errorf("oauth state does not match pending handshake")
	}
	if code == "" {
		return XProfile{}, oops.Code("AUTH_STATE_MISMATCH").Errorf("missing authorization code")
	}

	token, err := x.exchangeToken(ctx, code, hs.CodeVerifier)
	if err != nil {
		return XProfile{}, err
	}

	return x.fetchProfile(ctx, token)
}

func (x *XOAuthExchanger) exchangeToken(ctx context.Context, code, codeVerifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", x.config.RedirectURI)
	form.Set("client_id", x.config.ClientID)
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "build token request").
			Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(x.config.ClientID, x.config.ClientSecret)

	resp, err := x.client.Do(req)
	if err != nil {
		return "", oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "token exchange").
			Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "token exchange").
			With("status", resp.StatusCode).
			Errorf("token exchange failed")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "decode token response").
			Wrap(err)
	}
	if payload.AccessToken == "" {
		return "", oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "token exchange").
			Errorf("missing access token")
	}
	return payload.AccessToken, nil
}

func (x *XOAuthExchanger) fetchProfile(ctx context.Context, accessToken string) (XProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.config.UserURL, nil)
	if err != nil {
		return XProfile{}, oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "build profile request").
			Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return XProfile{}, oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "profile fetch").
			Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return XProfile{}, oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "profile fetch").
			With("status", resp.StatusCode).
			Errorf("profile request failed")
	}

	var payload struct {
		Data struct {
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return XProfile{}, oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "decode profile response").
			Wrap(err)
	}
	if payload.Data.Username == "" {
		return XProfile{}, oops.Code("EXTERNAL_SERVICE_FAILED").
			With("operation", "profile fetch").
			Errorf("profile missing username")
	}

	return XProfile{Handle: payload.Data.Username, DisplayName: payload.Data.Name}, nil
}

// ComputeS256Challenge derives the PKCE code challenge from a verifier.
func ComputeS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomURLSafe returns n random bytes encoded base64url without padding.
func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
