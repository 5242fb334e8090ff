package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

// MinTokenValidity is the threshold below which a token is refreshed
// before use.
const MinTokenValidity = 30 * time.Second

// KeycloakConfig configures the identity-provider client.
type KeycloakConfig struct {
	// BaseURL is the identity provider root, e.g. "https://id.example.com".
	BaseURL string

	// Realm is the Keycloak realm name.
	Realm string

	// ClientID is the public client id used by the web app.
	ClientID string
}

// Keycloak is a client for the external identity provider. Login,
// registration, and logout happen by browser redirect; this client only
// builds those URLs and exchanges refresh tokens server-side.
type Keycloak struct {
	config KeycloakConfig
	http   *http.Client
	logger logging.Logger

	// onForcedLogout runs when a refresh fails and the session must end.
	onForcedLogout func(userID string)

	mu     sync.Mutex
	tokens map[string]*Tokens // by user id
}

// Tokens is an access/refresh token pair with the parsed expiry.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// NewKeycloak creates an identity-provider client.
func NewKeycloak(config KeycloakConfig, logger logging.Logger) *Keycloak {
	return &Keycloak{
		config: config,
		http:   &http.Client{Timeout: 12 * time.Second},
		logger: logger,
		tokens: make(map[string]*Tokens),
	}
}

// OnForcedLogout registers the callback invoked when refresh fails.
func (k *Keycloak) OnForcedLogout(fn func(userID string)) {
	k.onForcedLogout = fn
}

func (k *Keycloak) realmURL(path string) string {
	return fmt.Sprintf("%s/realms/%s%s", strings.TrimRight(k.config.BaseURL, "/"), k.config.Realm, path)
}

// LoginURL builds the browser-redirect login URL.
func (k *Keycloak) LoginURL(redirectURI string) string {
	q := url.Values{
		"client_id":     {k.config.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {"openid"},
	}
	return k.realmURL("/protocol/openid-connect/auth") + "?" + q.Encode()
}

// RegisterURL builds the browser-redirect registration URL.
func (k *Keycloak) RegisterURL(redirectURI string) string {
	q := url.Values{
		"client_id":    {k.config.ClientID},
		"redirect_uri": {redirectURI},
	}
	return k.realmURL("/protocol/openid-connect/registrations") + "?" + q.Encode()
}

// LogoutURL builds the browser-redirect logout URL.
func (k *Keycloak) LogoutURL(redirectURI string) string {
	q := url.Values{
		"client_id":                {k.config.ClientID},
		"post_logout_redirect_uri": {redirectURI},
	}
	return k.realmURL("/protocol/openid-connect/logout") + "?" + q.Encode()
}

// SetTokens stores a token pair for a user, parsing the access-token
// expiry from its JWT claims.
func (k *Keycloak) SetTokens(userID string, t Tokens) {
	if t.ExpiresAt.IsZero() {
		if exp, err := tokenExpiry(t.AccessToken); err == nil {
			t.ExpiresAt = exp
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.tokens[userID] = &t
}

// ClearTokens drops stored tokens for a user.
func (k *Keycloak) ClearTokens(userID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.tokens, userID)
}

// ValidToken returns a bearer token for the user, refreshing first when
// the current one is within MinTokenValidity of expiring. A failed
// refresh clears the stored tokens and forces logout.
func (k *Keycloak) ValidToken(ctx context.Context, userID string) (string, error) {
	k.mu.Lock()
	t, ok := k.tokens[userID]
	k.mu.Unlock()

	if !ok {
		return "", ErrUnauthorized
	}

	if time.Until(t.ExpiresAt) > MinTokenValidity {
		return t.AccessToken, nil
	}

	refreshed, err := k.refresh(ctx, t.RefreshToken)
	if err != nil {
		k.logger.Warn("token refresh failed, forcing logout",
			logging.String("user_id", userID), logging.Err(err))
		k.ClearTokens(userID)
		if k.onForcedLogout != nil {
			k.onForcedLogout(userID)
		}
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	k.mu.Lock()
	k.tokens[userID] = refreshed
	k.mu.Unlock()

	return refreshed.AccessToken, nil
}

func (k *Keycloak) refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {k.config.ClientID},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		k.realmURL("/protocol/openid-connect/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

// SessionFromToken builds a session from an access token's claims.
// Signature verification stays with the identity provider.
func SessionFromToken(token string) (*Session, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding token claims: %w", err)
	}

	var claims struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		Exp           int64  `json:"exp"`
		SetupComplete bool   `json:"is_setup_complete"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parsing token claims: %w", err)
	}
	if claims.Sub == "" {
		return nil, ErrUnauthorized
	}
	if claims.Exp > 0 && time.Now().After(time.Unix(claims.Exp, 0)) {
		return nil, ErrSessionExpired
	}

	return &Session{
		UserID:          claims.Sub,
		DisplayName:     claims.Name,
		Email:           claims.Email,
		IsSetupComplete: claims.SetupComplete,
		ExpiresAt:       time.Unix(claims.Exp, 0),
	}, nil
}

// tokenExpiry reads the exp claim from a JWT without verifying the
// signature. Verification belongs to the identity provider; this side
// only schedules refreshes.
func tokenExpiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding token claims: %w", err)
	}

	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token claims: %w", err)
	}

	return time.Unix(claims.Exp, 0), nil
}
