package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jitendersingh2001/Wealthyfy/internal/auth"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

// stubIdentity records the redirect URIs the server hands out.
type stubIdentity struct{}

func (stubIdentity) LoginURL(redirectURI string) string {
	return "https://id.example/auth?redirect_uri=" + url.QueryEscape(redirectURI)
}

func (stubIdentity) RegisterURL(redirectURI string) string {
	return "https://id.example/registrations?redirect_uri=" + url.QueryEscape(redirectURI)
}

func (stubIdentity) LogoutURL(redirectURI string) string {
	return "https://id.example/logout?post_logout_redirect_uri=" + url.QueryEscape(redirectURI)
}

// headerResolver authenticates requests carrying X-Test-User.
func headerResolver() SessionResolver {
	return func(r *http.Request) *auth.Session {
		user := r.Header.Get("X-Test-User")
		if user == "" {
			return nil
		}
		return &auth.Session{
			UserID:          user,
			IsSetupComplete: true,
			ExpiresAt:       time.Now().Add(time.Hour),
		}
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := New(Options{
		Resolver: headerResolver(),
		Identity: stubIdentity{},
		Logger:   logging.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path, user string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLoginRedirectsToProvider(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/login", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, "https://id.example/auth?"), "Location = %q", loc)

	parsed, err := url.Parse(loc)
	require.NoError(t, err)
	back, err := url.Parse(parsed.Query().Get("redirect_uri"))
	require.NoError(t, err)
	assert.Equal(t, "/", back.Path)
}

func TestRegisterRedirectsToProvider(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/register", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://id.example/registrations?"))
}

func TestLoginBouncesAuthenticatedUsers(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/login", "user-1")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLogoutClearsCookieAndEndsProviderSession(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/logout", "user-1")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://id.example/logout?"))

	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == "access_token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "access_token cookie not cleared")
}
