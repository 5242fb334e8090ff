package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeJWT assembles an unsigned token with the given claims. Signature
// verification belongs to the identity provider, so the tail segment is
// arbitrary.
func fakeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestSessionFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	token := fakeJWT(t, map[string]any{
		"sub":               "user-1",
		"name":              "Asha Rao",
		"email":             "asha@example.com",
		"exp":               exp,
		"is_setup_complete": true,
	})

	sess, err := SessionFromToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if sess.UserID != "user-1" || sess.DisplayName != "Asha Rao" || sess.Email != "asha@example.com" {
		t.Errorf("session = %+v", sess)
	}
	if !sess.IsSetupComplete {
		t.Error("IsSetupComplete not carried over")
	}
	if !sess.IsAuthenticated() {
		t.Error("fresh session should be authenticated")
	}
}

func TestSessionFromTokenMissingSubject(t *testing.T) {
	token := fakeJWT(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	_, err := SessionFromToken(token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v", err)
	}
}

func TestSessionFromTokenExpired(t *testing.T) {
	token := fakeJWT(t, map[string]any{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	_, err := SessionFromToken(token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err = %v", err)
	}
}

func TestSessionFromTokenMalformed(t *testing.T) {
	for _, token := range []string{"", "abc", "a.b", "a.!!!.c"} {
		if _, err := SessionFromToken(token); err == nil {
			t.Errorf("token %q accepted", token)
		}
	}
}

func TestLoginURLCarriesClientAndRedirect(t *testing.T) {
	k := NewKeycloak(KeycloakConfig{
		BaseURL:  "https://id.example.com/",
		Realm:    "wealthyfy",
		ClientID: "wealthyfy-web",
	}, nil)

	u := k.LoginURL("https://app.example.com/")
	if !strings.HasPrefix(u, "https://id.example.com/realms/wealthyfy/protocol/openid-connect/auth?") {
		t.Errorf("url = %q", u)
	}
	for _, want := range []string{"client_id=wealthyfy-web", "response_type=code", "scope=openid"} {
		if !strings.Contains(u, want) {
			t.Errorf("url %q missing %q", u, want)
		}
	}

	if out := k.LogoutURL("https://app.example.com/"); !strings.Contains(out, "post_logout_redirect_uri=") {
		t.Errorf("logout url = %q", out)
	}
	if reg := k.RegisterURL("https://app.example.com/"); !strings.Contains(reg, "/registrations?") {
		t.Errorf("register url = %q", reg)
	}
}
