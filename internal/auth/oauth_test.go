// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnptv/hubauth/pkg/errutil"
)

func testOAuthConfig() XOAuthConfig {
	return XOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://hub.example.com/auth/x/callback",
	}
}

func TestXOAuthExchanger_Start(t *testing.T) {
	x := NewXOAuthExchanger(testOAuthConfig())

	authURL, hs, err := x.Start()
	require.NoError(t, err)
	require.NotEmpty(t, hs.State)
	require.NotEmpty(t, hs.CodeVerifier)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "twitter.com", parsed.Host)

	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://hub.example.com/auth/x/callback", q.Get("redirect_uri"))
	assert.Equal(t, "tweet.read users.read", q.Get("scope"))
	assert.Equal(t, hs.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, ComputeS256Challenge(hs.CodeVerifier), q.Get("code_challenge"))
}

func TestXOAuthExchanger_Start_FreshHandshakes(t *testing.T) {
	x := NewXOAuthExchanger(testOAuthConfig())

	_, hs1, err := x.Start()
	require.NoError(t, err)
	_, hs2, err := x.Start()
	require.NoError(t, err)

	assert.NotEqual(t, hs1.State, hs2.State)
	assert.NotEqual(t, hs1.CodeVerifier, hs2.CodeVerifier)
}

func TestXOAuthExchanger_Start_NotConfigured(t *testing.T) {
	x := NewXOAuthExchanger(XOAuthConfig{})

	_, _, err := x.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OAUTH_NOT_CONFIGURED")
}

// newFakeProvider stands in for X's token and user endpoints.
func newFakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.PostForm.Get("grant_type") != "authorization_code" ||
			r.PostForm.Get("code") != "good-code" ||
			r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"}) //nolint:errcheck
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"data": map[string]string{"username": "jdoe", "name": "Jo Doe"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestExchanger(t *testing.T) *XOAuthExchanger {
	t.Helper()
	provider := newFakeProvider(t)
	cfg := testOAuthConfig()
	cfg.TokenURL = provider.URL + "/token"
	cfg.UserURL = provider.URL + "/me"
	return NewXOAuthExchanger(cfg)
}

func TestXOAuthExchanger_Exchange(t *testing.T) {
	x := newTestExchanger(t)

	_, hs, err := x.Start()
	require.NoError(t, err)

	profile, err := x.Exchange(t.Context(), hs, "good-code", hs.State)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", profile.Handle)
	assert.Equal(t, "Jo Doe", profile.DisplayName)
}

func TestXOAuthExchanger_Exchange_StateMismatch(t *testing.T) {
	x := newTestExchanger(t)

	_, hs, err := x.Start()
	require.NoError(t, err)

	_, err = x.Exchange(t.Context(), hs, "good-code", "forged-state")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_STATE_MISMATCH")
}

func TestXOAuthExchanger_Exchange_EmptyState(t *testing.T) {
	x := newTestExchanger(t)

	// Neither side may be empty, even if both are.
	_, err := x.Exchange(t.Context(), OAuthHandshake{CodeVerifier: "v"}, "good-code", "")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_STATE_MISMATCH")
}

func TestXOAuthExchanger_Exchange_MissingCode(t *testing.T) {
	x := newTestExchanger(t)

	_, hs, err := x.Start()
	require.NoError(t, err)

	_, err = x.Exchange(t.Context(), hs, "", hs.State)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_STATE_MISMATCH")
}

func TestXOAuthExchanger_Exchange_ProviderRejectsCode(t *testing.T) {
	x := newTestExchanger(t)

	_, hs, err := x.Start()
	require.NoError(t, err)

	_, err = x.Exchange(t.Context(), hs, "bad-code", hs.State)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "EXTERNAL_SERVICE_FAILED")
}

func TestComputeS256Challenge(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", ComputeS256Challenge(verifier))
}
